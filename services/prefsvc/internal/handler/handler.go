package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/services/prefsvc/api"
	"github.com/xinkaiwang/swmr/services/prefsvc/internal/biz"
)

type Handler struct {
	app      *biz.App
	sessions *SessionResolver
}

func NewHandler(app *biz.App, sessions *SessionResolver) *Handler {
	return &Handler{app: app, sessions: sessions}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/ping", ErrorHandlingMiddleware(http.HandlerFunc(h.PingHandler)))
	mux.Handle("GET /api/prefs", ErrorHandlingMiddleware(http.HandlerFunc(h.ListHandler)))
	mux.Handle("POST /api/prefs/{id}", ErrorHandlingMiddleware(http.HandlerFunc(h.SetValueHandler)))
	mux.Handle("GET /api/prefs/{id}", ErrorHandlingMiddleware(http.HandlerFunc(h.GetAllEntriesHandler)))
	mux.Handle("GET /api/prefs/{id}/{key}", ErrorHandlingMiddleware(http.HandlerFunc(h.GetValueHandler)))
	mux.Handle("DELETE /api/prefs/{id}", ErrorHandlingMiddleware(http.HandlerFunc(h.ClearValuesHandler)))
	mux.Handle("GET /api/status/{id}", ErrorHandlingMiddleware(http.HandlerFunc(h.StatusHandler)))
	mux.Handle("POST /api/status/{id}/reset", ErrorHandlingMiddleware(http.HandlerFunc(h.ResetHandler)))
}

func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	writeJson(w, &api.PingResponse{Version: biz.GetVersion(), Grains: h.app.Stats().Grains, Nodes: h.app.Nodes()})
}

func (h *Handler) ListHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := h.app.ListPersistedIds(r.Context())
	if err != nil {
		panic(err)
	}
	writeJson(w, &api.ListResponse{Ids: ids})
}

func (h *Handler) SetValueHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req api.SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		panic(kerror.Create("BadRequest", "invalid request format").
			WithErrorCode(kerror.EC_INVALID_PARAMETER).
			With("error", err.Error()))
	}
	sessionId := h.sessions.Resolve(w, r)
	if err := h.app.SetValue(r.Context(), id, sessionId, req.Key, req.Value); err != nil {
		panic(err)
	}
	klogging.Debug(r.Context()).With("id", id).With("key", req.Key).With("sessionId", sessionId).Log("PrefsSetValue", "")
	writeJson(w, &api.SetValueResponse{Id: id, Key: req.Key})
}

func (h *Handler) GetValueHandler(w http.ResponseWriter, r *http.Request) {
	id, key := r.PathValue("id"), r.PathValue("key")
	value, err := h.app.GetValue(r.Context(), id, h.sessions.Resolve(w, r), key)
	if err != nil {
		panic(err)
	}
	writeJson(w, &api.GetValueResponse{Id: id, Key: key, Value: value})
}

func (h *Handler) GetAllEntriesHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := h.app.GetAllEntries(r.Context(), id, h.sessions.Resolve(w, r))
	if err != nil {
		panic(err)
	}
	writeJson(w, &api.EntriesResponse{Id: id, Entries: entries})
}

func (h *Handler) ClearValuesHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.app.ClearValues(r.Context(), id, h.sessions.Resolve(w, r)); err != nil {
		panic(err)
	}
	writeJson(w, &api.ClearResponse{Id: id})
}

func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := h.app.LazyWriterStatus(r.Context(), id)
	if err != nil {
		panic(err)
	}
	writeJson(w, &api.StatusResponse{Id: id, LazyWriter: status})
}

// ResetHandler clears a permanent persistence failure.
func (h *Handler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := h.app.ResetLazyWriter(r.Context(), id)
	if err != nil {
		panic(err)
	}
	klogging.Info(r.Context()).With("id", id).Log("LazyWriterResetRequested", "")
	writeJson(w, &api.StatusResponse{Id: id, LazyWriter: status})
}

func writeJson(w http.ResponseWriter, resp interface{}) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		panic(kerror.Create("EncodingError", "failed to encode response").
			WithErrorCode(kerror.EC_INTERNAL_ERROR).
			With("error", err.Error()))
	}
}
