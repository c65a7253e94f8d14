package www

import (
	"encoding/json"
	"errors"
	"net/http"

	"iotronic/conductor"
	"iotronic/store"
)

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, map[string]any{
		"status":    "ok",
		"messaging": h.broker.IsConnected(),
		"hostname":  h.cfg.Conductor.Hostname,
	})
}

func (h *Handlers) apiListConductors(w http.ResponseWriter, r *http.Request) {
	conductors, err := h.db.ListOnlineConductors()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, conductors)
}

func (h *Handlers) apiListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.db.ListOnlineAgents()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, agents)
}

func (h *Handlers) apiListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.db.ListValidSessions()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, sessions)
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeOpError maps domain errors to HTTP statuses so API consumers can
// distinguish retryable contention from hard failures.
func (h *Handlers) writeOpError(w http.ResponseWriter, err error) {
	var (
		locked       *conductor.BoardLockedError
		notConnected *conductor.BoardNotConnectedError
		badAction    *conductor.InvalidPluginActionError
		badParams    *conductor.InvalidPluginParamsError
		noInjection  *conductor.InjectionNotFoundError
		execErr      *conductor.ExecutionError
		unavailable  *conductor.UnavailableError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.jsonError(w, "not found", http.StatusNotFound)
	case errors.As(err, &locked):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, conductor.ErrNoFreeWorker):
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &notConnected):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &badAction), errors.As(err, &badParams):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &noInjection):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &unavailable):
		h.jsonError(w, err.Error(), http.StatusGatewayTimeout)
	case errors.As(err, &execErr):
		h.jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
