package www

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"iotronic/conductor"
	"iotronic/config"
	"iotronic/registry"
	"iotronic/store"
)

// Broker is what the health check needs from the messaging client.
type Broker interface {
	IsConnected() bool
}

type Handlers struct {
	db       *store.DB
	endpoint *conductor.Endpoint
	registry *registry.Registry
	broker   Broker
	cfg      *config.Config
	sessions *sessions.CookieStore
}

// NewRouter wires the JSON API. Reads are open; mutations sit behind the
// admin session.
func NewRouter(db *store.DB, ep *conductor.Endpoint, reg *registry.Registry, broker Broker, cfg *config.Config) http.Handler {
	h := &Handlers{
		db:       db,
		endpoint: ep,
		registry: reg,
		broker:   broker,
		cfg:      cfg,
		sessions: newSessionStore(cfg.Web.SessionSecret),
	}
	h.ensureDefaultAdmin(db)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)
		r.Get("/boards", h.apiListBoards)
		r.Get("/boards/{uuid}", h.apiGetBoard)
		r.Get("/boards/{uuid}/location", h.apiBoardLocation)
		r.Get("/boards/{uuid}/plugins", h.apiBoardInjections)
		r.Get("/plugins", h.apiListPlugins)
		r.Get("/plugins/{uuid}", h.apiGetPlugin)
		r.Get("/conductors", h.apiListConductors)
		r.Get("/agents", h.apiListAgents)
		r.Get("/sessions", h.apiListSessions)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/boards", h.apiCreateBoard)
		r.Put("/api/boards/{uuid}", h.apiUpdateBoard)
		r.Delete("/api/boards/{uuid}", h.apiDestroyBoard)
		r.Post("/api/boards/{uuid}/action", h.apiBoardAction)
		r.Post("/api/plugins", h.apiCreatePlugin)
		r.Put("/api/plugins/{uuid}", h.apiUpdatePlugin)
		r.Delete("/api/plugins/{uuid}", h.apiDestroyPlugin)
		r.Post("/api/boards/{uuid}/plugins", h.apiInjectPlugin)
		r.Delete("/api/boards/{uuid}/plugins/{plugin}", h.apiRemovePlugin)
		r.Post("/api/boards/{uuid}/plugins/{plugin}/action", h.apiPluginAction)
		r.Get("/api/config", h.apiGetConfig)
	})

	return r
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &creds); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.db.GetAdminUser(creds.Username)
	if err != nil || !checkPassword(user.PasswordHash, creds.Password) {
		h.jsonError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["username"] = creds.Username
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: session save error: %v", err)
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Values["username"] = ""
	session.Save(r, w)
	h.jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	// Secrets stay out of the API.
	h.jsonOK(w, map[string]any{
		"conductor": h.cfg.Conductor,
		"messaging": map[string]any{
			"backend":      h.cfg.Messaging.Backend,
			"call_timeout": h.cfg.Messaging.CallTimeout.String(),
		},
		"database": map[string]any{
			"driver": h.cfg.Database.Driver,
		},
	})
}
