// Package adminapi exposes the route table as a JSON CRUD surface. Every
// mutation is funneled through config.Store.Replace so the management API
// gets the exact same validation and atomic-swap guarantees as a file-based
// reload — there is no separate write path that could drift from it.
package adminapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/wudi/kairos/internal/config"
	"github.com/wudi/kairos/internal/gwerrors"
	"github.com/wudi/kairos/internal/middleware"
	"github.com/wudi/kairos/internal/obsv"
	"go.uber.org/zap"
)

// Handler wraps a config.Store with the route-management HTTP surface.
type Handler struct {
	store *config.Store
}

// New builds the admin API handler around store.
func New(store *config.Store) http.Handler {
	h := &Handler{store: store}

	r := httprouter.New()
	r.GET("/api/routes", h.list)
	r.POST("/api/routes", h.create)
	r.POST("/api/routes/validate", h.validate)
	r.GET("/api/routes/*external_path", h.get)
	r.PUT("/api/routes/*external_path", h.replace)
	r.PATCH("/api/routes/*external_path", h.patch)
	r.DELETE("/api/routes/*external_path", h.delete)
	r.POST("/api/config/reload", h.reload)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cfg := h.store.Snapshot()
	writeJSON(w, http.StatusOK, cfg.Routers)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	route := findRoute(h.store.Snapshot(), ps.ByName("external_path"))
	if route == nil {
		writeError(w, r, gwerrors.New("RouteNotFound", http.StatusNotFound, "no route with that external_path"))
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var route config.Route
	if err := decodeRoute(r.Body, &route); err != nil {
		writeError(w, r, gwerrors.New("BadRequest", http.StatusBadRequest, err.Error()))
		return
	}

	cfg := h.store.Snapshot()
	if findRoute(cfg, route.ExternalPath) != nil {
		writeError(w, r, gwerrors.New("RouteExists", http.StatusConflict, "a route with that external_path already exists"))
		return
	}

	next := cloneConfig(cfg)
	next.Routers = append(next.Routers, route)
	if err := h.store.Replace(next); err != nil {
		writeValidationError(w, r, err)
		return
	}
	h.persist(next)
	writeJSON(w, http.StatusCreated, route)
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	externalPath := ps.ByName("external_path")

	var route config.Route
	if err := decodeRoute(r.Body, &route); err != nil {
		writeError(w, r, gwerrors.New("BadRequest", http.StatusBadRequest, err.Error()))
		return
	}
	route.ExternalPath = externalPath

	cfg := h.store.Snapshot()
	idx := findRouteIndex(cfg, externalPath)
	if idx < 0 {
		writeError(w, r, gwerrors.New("RouteNotFound", http.StatusNotFound, "no route with that external_path"))
		return
	}

	next := cloneConfig(cfg)
	next.Routers[idx] = route
	if err := h.store.Replace(next); err != nil {
		writeValidationError(w, r, err)
		return
	}
	h.persist(next)
	writeJSON(w, http.StatusOK, route)
}

// patch applies a shallow JSON merge patch onto the existing route, using
// gjson to walk the patch body's top-level fields without requiring the
// caller to resend the whole route. Unlike replace, omitted fields keep
// their current value.
func (h *Handler) patch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	externalPath := ps.ByName("external_path")

	cfg := h.store.Snapshot()
	idx := findRouteIndex(cfg, externalPath)
	if idx < 0 {
		writeError(w, r, gwerrors.New("RouteNotFound", http.StatusNotFound, "no route with that external_path"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBodyBytes))
	if err != nil {
		writeError(w, r, gwerrors.New("BadRequest", http.StatusBadRequest, "could not read request body"))
		return
	}

	merged, err := mergePatch(cfg.Routers[idx], body)
	if err != nil {
		writeError(w, r, gwerrors.New("BadRequest", http.StatusBadRequest, err.Error()))
		return
	}
	merged.ExternalPath = externalPath

	next := cloneConfig(cfg)
	next.Routers[idx] = merged
	if err := h.store.Replace(next); err != nil {
		writeValidationError(w, r, err)
		return
	}
	h.persist(next)
	writeJSON(w, http.StatusOK, merged)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	externalPath := ps.ByName("external_path")

	cfg := h.store.Snapshot()
	idx := findRouteIndex(cfg, externalPath)
	if idx < 0 {
		writeError(w, r, gwerrors.New("RouteNotFound", http.StatusNotFound, "no route with that external_path"))
		return
	}

	next := cloneConfig(cfg)
	next.Routers = append(next.Routers[:idx], next.Routers[idx+1:]...)
	if err := h.store.Replace(next); err != nil {
		writeValidationError(w, r, err)
		return
	}
	h.persist(next)
	w.WriteHeader(http.StatusNoContent)
}

// persist writes cfg back to the store's on-disk source, if one is
// configured, so a mutation made through the API survives a restart the
// same way a file-based reload's source already does. A write failure is
// logged, not surfaced to the caller — the in-memory config already took
// effect and is what the running gateway actually serves.
func (h *Handler) persist(cfg *config.ActiveConfig) {
	path := h.store.SourcePath()
	if path == "" {
		return
	}
	if err := config.Persist(path, cfg); err != nil {
		obsv.Error("failed to persist config after admin API mutation", zap.Error(err), zap.String("path", path))
	}
}

// validate runs a candidate route through config.Validate without
// publishing it, so a caller can check a route before committing to it.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var route config.Route
	if err := decodeRoute(r.Body, &route); err != nil {
		writeError(w, r, gwerrors.New("BadRequest", http.StatusBadRequest, err.Error()))
		return
	}

	candidate := cloneConfig(h.store.Snapshot())
	if idx := findRouteIndex(candidate, route.ExternalPath); idx >= 0 {
		candidate.Routers[idx] = route
	} else {
		candidate.Routers = append(candidate.Routers, route)
	}

	if err := config.Validate(candidate); err != nil {
		writeValidationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

// reload re-reads the config store's on-disk source, the same path a
// file-watcher-driven reload takes.
func (h *Handler) reload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.store.ReloadFromFile(""); err != nil {
		writeValidationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

const maxPatchBodyBytes = 1 << 20 // 1 MiB, matching the retry driver's body-buffering cap

func decodeRoute(body io.Reader, route *config.Route) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(route)
}

func findRoute(cfg *config.ActiveConfig, externalPath string) *config.Route {
	if idx := findRouteIndex(cfg, externalPath); idx >= 0 {
		return &cfg.Routers[idx]
	}
	return nil
}

func findRouteIndex(cfg *config.ActiveConfig, externalPath string) int {
	for i := range cfg.Routers {
		if cfg.Routers[i].ExternalPath == externalPath {
			return i
		}
	}
	return -1
}

// cloneConfig returns a copy of cfg with its own Routers backing array, so
// mutating the copy never touches the snapshot still in use by in-flight
// requests.
func cloneConfig(cfg *config.ActiveConfig) *config.ActiveConfig {
	clone := *cfg
	clone.Routers = make([]config.Route, len(cfg.Routers))
	copy(clone.Routers, cfg.Routers)
	return &clone
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err *gwerrors.GatewayError) {
	err.WithRequestID(middleware.GetRequestID(r)).WriteJSON(w)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	gwerrors.ErrConfigInvalid.Wrap(err).WithRequestID(middleware.GetRequestID(r)).WriteJSON(w)
}
