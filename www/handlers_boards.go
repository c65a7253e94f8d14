package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"iotronic/store"
)

func (h *Handlers) apiListBoards(w http.ResponseWriter, r *http.Request) {
	var (
		boards []*store.Board
		err    error
	)
	switch {
	case r.URL.Query().Get("status") != "":
		boards, err = h.db.ListBoardsByStatus(r.URL.Query().Get("status"))
	case r.URL.Query().Get("owner") != "":
		boards, err = h.db.ListBoardsByOwner(r.URL.Query().Get("owner"))
	default:
		boards, err = h.db.ListBoards()
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, boards)
}

func (h *Handlers) apiGetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.db.GetBoard(chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, board)
}

func (h *Handlers) apiBoardLocation(w http.ResponseWriter, r *http.Request) {
	board, err := h.db.GetBoard(chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	loc, err := h.db.GetBoardLocation(board.ID)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, loc)
}

func (h *Handlers) apiBoardInjections(w http.ResponseWriter, r *http.Request) {
	injections, err := h.db.ListInjectionsByBoard(chi.URLParam(r, "uuid"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, injections)
}

type createBoardRequest struct {
	UUID      string         `json:"uuid"`
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Owner     string         `json:"owner"`
	Project   string         `json:"project"`
	Mobile    bool           `json:"mobile"`
	Extra     map[string]any `json:"extra"`
	Longitude string         `json:"longitude"`
	Latitude  string         `json:"latitude"`
	Altitude  string         `json:"altitude"`
}

func (h *Handlers) apiCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req createBoardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Name == "" {
		h.jsonError(w, "code and name are required", http.StatusBadRequest)
		return
	}

	board := &store.Board{
		UUID:    req.UUID,
		Code:    req.Code,
		Name:    req.Name,
		Type:    req.Type,
		Owner:   req.Owner,
		Project: req.Project,
		Mobile:  req.Mobile,
		Extra:   req.Extra,
	}
	loc := &store.Location{
		Longitude: req.Longitude,
		Latitude:  req.Latitude,
		Altitude:  req.Altitude,
	}
	board, err := h.endpoint.CreateBoard(board, loc)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, board)
}

func (h *Handlers) apiUpdateBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.db.GetBoard(chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}

	var req struct {
		Name    *string        `json:"name"`
		Owner   *string        `json:"owner"`
		Project *string        `json:"project"`
		Mobile  *bool          `json:"mobile"`
		Extra   map[string]any `json:"extra"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != nil {
		board.Name = *req.Name
	}
	if req.Owner != nil {
		board.Owner = *req.Owner
	}
	if req.Project != nil {
		board.Project = *req.Project
	}
	if req.Mobile != nil {
		board.Mobile = *req.Mobile
	}
	if req.Extra != nil {
		board.Extra = req.Extra
	}

	board, err = h.endpoint.UpdateBoard(r.Context(), board)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, board)
}

func (h *Handlers) apiDestroyBoard(w http.ResponseWriter, r *http.Request) {
	result, err := h.endpoint.DestroyBoard(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"status": "deleted", "result": result})
}

// apiBoardAction dispatches an arbitrary procedure to a board. Admin only;
// the procedure name and args pass through to the board as-is.
func (h *Handlers) apiBoardAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Procedure string `json:"procedure"`
		Args      []any  `json:"args"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Procedure == "" {
		h.jsonError(w, "procedure is required", http.StatusBadRequest)
		return
	}
	result, err := h.endpoint.ExecuteOnBoard(r.Context(), chi.URLParam(r, "uuid"), req.Procedure, req.Args)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"result": result})
}
