package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wudi/kairos/internal/config"
)

func newTestStore(routes ...config.Route) *config.Store {
	cfg := config.DefaultActiveConfig()
	cfg.Routers = routes
	return config.NewStore(cfg)
}

func sampleRoute(externalPath string) config.Route {
	return config.Route{
		ExternalPath: externalPath,
		InternalPath: externalPath,
		Methods:      []string{"GET"},
		Backends:     []config.Backend{{Host: "http://127.0.0.1", Port: 9000}},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestAdminAPIListsRoutes(t *testing.T) {
	store := newTestStore(sampleRoute("/widgets"))
	h := New(store)

	w := doJSON(t, h, http.MethodGet, "/api/routes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var routes []config.Route
	if err := json.Unmarshal(w.Body.Bytes(), &routes); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(routes) != 1 || routes[0].ExternalPath != "/widgets" {
		t.Fatalf("unexpected routes: %+v", routes)
	}
}

func TestAdminAPICreatesAndFetchesRoute(t *testing.T) {
	store := newTestStore()
	h := New(store)

	route := sampleRoute("/widgets")
	w := doJSON(t, h, http.MethodPost, "/api/routes", route)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/api/routes/widgets", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminAPIRejectsDuplicateExternalPath(t *testing.T) {
	store := newTestStore(sampleRoute("/widgets"))
	h := New(store)

	w := doJSON(t, h, http.MethodPost, "/api/routes", sampleRoute("/widgets"))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminAPIPatchAppliesPartialUpdate(t *testing.T) {
	store := newTestStore(sampleRoute("/widgets"))
	h := New(store)

	patch := map[string]any{"auth_required": true}
	w := doJSON(t, h, http.MethodPatch, "/api/routes/widgets", patch)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var route config.Route
	if err := json.Unmarshal(w.Body.Bytes(), &route); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !route.AuthRequired {
		t.Errorf("expected auth_required to be patched to true")
	}
	if len(route.Backends) != 1 {
		t.Errorf("expected the patch to leave backends untouched, got %+v", route.Backends)
	}
}

func TestAdminAPIDeletesRoute(t *testing.T) {
	store := newTestStore(sampleRoute("/widgets"))
	h := New(store)

	w := doJSON(t, h, http.MethodDelete, "/api/routes/widgets", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	if len(store.Snapshot().Routers) != 0 {
		t.Errorf("expected the route to be removed from the store")
	}
}

func TestAdminAPIValidateDoesNotMutateStore(t *testing.T) {
	store := newTestStore()
	h := New(store)

	badRoute := config.Route{ExternalPath: "/bad"} // missing methods/backends
	w := doJSON(t, h, http.MethodPost, "/api/routes/validate", badRoute)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if len(store.Snapshot().Routers) != 0 {
		t.Errorf("expected validate to leave the store untouched")
	}
}

func TestAdminAPIGetMissingRouteReturns404(t *testing.T) {
	store := newTestStore()
	h := New(store)

	w := doJSON(t, h, http.MethodGet, "/api/routes/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
