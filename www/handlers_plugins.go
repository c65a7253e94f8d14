package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"iotronic/store"
)

func (h *Handlers) apiListPlugins(w http.ResponseWriter, r *http.Request) {
	var (
		plugins []*store.Plugin
		err     error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		plugins, err = h.db.ListPluginsVisibleTo(owner)
	} else {
		plugins, err = h.db.ListPlugins()
	}
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, plugins)
}

func (h *Handlers) apiGetPlugin(w http.ResponseWriter, r *http.Request) {
	plugin, err := h.db.GetPlugin(chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, plugin)
}

type pluginRequest struct {
	Name       string         `json:"name"`
	Owner      string         `json:"owner"`
	Public     bool           `json:"public"`
	Code       string         `json:"code"`
	Callable   bool           `json:"callable"`
	Parameters map[string]any `json:"parameters"`
	Extra      map[string]any `json:"extra"`
}

func (h *Handlers) apiCreatePlugin(w http.ResponseWriter, r *http.Request) {
	var req pluginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Code == "" {
		h.jsonError(w, "name and code are required", http.StatusBadRequest)
		return
	}

	plugin, err := h.endpoint.CreatePlugin(&store.Plugin{
		Name:       req.Name,
		Owner:      req.Owner,
		Public:     req.Public,
		Code:       req.Code,
		Callable:   req.Callable,
		Parameters: req.Parameters,
		Extra:      req.Extra,
	})
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, plugin)
}

func (h *Handlers) apiUpdatePlugin(w http.ResponseWriter, r *http.Request) {
	plugin, err := h.db.GetPlugin(chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}

	var req struct {
		Name       *string        `json:"name"`
		Public     *bool          `json:"public"`
		Code       *string        `json:"code"`
		Callable   *bool          `json:"callable"`
		Parameters map[string]any `json:"parameters"`
		Extra      map[string]any `json:"extra"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != nil {
		plugin.Name = *req.Name
	}
	if req.Public != nil {
		plugin.Public = *req.Public
	}
	if req.Code != nil {
		plugin.Code = *req.Code
	}
	if req.Callable != nil {
		plugin.Callable = *req.Callable
	}
	if req.Parameters != nil {
		plugin.Parameters = req.Parameters
	}
	if req.Extra != nil {
		plugin.Extra = req.Extra
	}

	plugin, err = h.endpoint.UpdatePlugin(plugin)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, plugin)
}

func (h *Handlers) apiDestroyPlugin(w http.ResponseWriter, r *http.Request) {
	if err := h.endpoint.DestroyPlugin(chi.URLParam(r, "uuid")); err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, map[string]string{"status": "deleted"})
}

func (h *Handlers) apiInjectPlugin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PluginUUID string `json:"plugin_uuid"`
		OnBoot     bool   `json:"onboot"`
	}
	if err := decodeJSON(r, &req); err != nil || req.PluginUUID == "" {
		h.jsonError(w, "plugin_uuid is required", http.StatusBadRequest)
		return
	}
	result, err := h.endpoint.InjectPlugin(r.Context(), req.PluginUUID, chi.URLParam(r, "uuid"), req.OnBoot)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"result": result})
}

func (h *Handlers) apiRemovePlugin(w http.ResponseWriter, r *http.Request) {
	result, err := h.endpoint.RemovePlugin(r.Context(), chi.URLParam(r, "plugin"), chi.URLParam(r, "uuid"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"result": result})
}

func (h *Handlers) apiPluginAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Action == "" {
		h.jsonError(w, "action is required", http.StatusBadRequest)
		return
	}
	result, err := h.endpoint.ActionPlugin(r.Context(), chi.URLParam(r, "plugin"), chi.URLParam(r, "uuid"), req.Action, req.Params)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.jsonOK(w, map[string]any{"result": result})
}
