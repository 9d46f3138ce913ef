package transform

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wudi/kairos/internal/config"
)

func TestApplyHeaderRulesAdd(t *testing.T) {
	h := http.Header{}
	h.Set("X-Existing", "keep-me")
	ApplyHeaderRules(h, []config.HeaderRule{
		{Kind: "add", Name: "X-Existing", Value: "overwritten"},
		{Kind: "add", Name: "X-New", Value: "added"},
	})
	if h.Get("X-Existing") != "keep-me" {
		t.Errorf("add should not overwrite an existing header, got %q", h.Get("X-Existing"))
	}
	if h.Get("X-New") != "added" {
		t.Errorf("expected X-New to be added, got %q", h.Get("X-New"))
	}
}

func TestApplyHeaderRulesSet(t *testing.T) {
	h := http.Header{}
	h.Set("X-Existing", "old")
	ApplyHeaderRules(h, []config.HeaderRule{{Kind: "set", Name: "X-Existing", Value: "new"}})
	if h.Get("X-Existing") != "new" {
		t.Errorf("expected set to overwrite, got %q", h.Get("X-Existing"))
	}
}

func TestApplyHeaderRulesRemove(t *testing.T) {
	h := http.Header{}
	h.Set("X-Gone", "bye")
	ApplyHeaderRules(h, []config.HeaderRule{{Kind: "remove", Name: "X-Gone"}})
	if h.Get("X-Gone") != "" {
		t.Error("expected header to be removed")
	}
}

func TestApplyHeaderRulesReplace(t *testing.T) {
	h := http.Header{}
	h.Set("X-Trace", "abc-123-def")
	ApplyHeaderRules(h, []config.HeaderRule{
		{Kind: "replace", Name: "X-Trace", Pattern: `\d+`, Replacement: "###"},
	})
	if h.Get("X-Trace") != "abc-###-def" {
		t.Errorf("expected regex replacement, got %q", h.Get("X-Trace"))
	}
}

func TestApplyHeaderRulesReplaceInvalidPatternNoop(t *testing.T) {
	h := http.Header{}
	h.Set("X-Trace", "abc")
	ApplyHeaderRules(h, []config.HeaderRule{
		{Kind: "replace", Name: "X-Trace", Pattern: "(", Replacement: "x"},
	})
	if h.Get("X-Trace") != "abc" {
		t.Errorf("expected header unchanged on invalid pattern, got %q", h.Get("X-Trace"))
	}
}

func TestApplyPathRule(t *testing.T) {
	rule := &config.PathRule{Pattern: `^/v1/`, Replacement: "/v2/"}
	got := ApplyPathRule("/v1/users/42", rule)
	if got != "/v2/users/42" {
		t.Errorf("expected /v2/users/42, got %q", got)
	}
}

func TestApplyPathRuleNilIsNoop(t *testing.T) {
	if got := ApplyPathRule("/unchanged", nil); got != "/unchanged" {
		t.Errorf("expected unchanged path, got %q", got)
	}
}

func TestApplyQueryRules(t *testing.T) {
	req := httptest.NewRequest("GET", "/test?keep=1&drop=2", nil)
	values := req.URL.Query()
	ApplyQueryRules(values, []config.QueryRule{
		{Kind: "remove", Name: "drop"},
		{Kind: "add", Name: "keep", Value: "overwritten"},
		{Kind: "set", Name: "added", Value: "yes"},
	})
	if values.Get("drop") != "" {
		t.Error("expected drop to be removed")
	}
	if values.Get("keep") != "1" {
		t.Errorf("expected add to not overwrite keep, got %q", values.Get("keep"))
	}
	if values.Get("added") != "yes" {
		t.Errorf("expected added=yes, got %q", values.Get("added"))
	}
}

func TestApplyStatusRulesFirstMatchWins(t *testing.T) {
	rules := []config.StatusRule{{From: 502, To: 503}, {From: 502, To: 500}}
	if got := ApplyStatusRules(502, rules); got != 503 {
		t.Errorf("expected first matching rule to win, got %d", got)
	}
	if got := ApplyStatusRules(200, rules); got != 200 {
		t.Errorf("expected unmatched status unchanged, got %d", got)
	}
}

func TestStripHopByHop(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "X-Custom")
	h.Set("X-Custom", "should-be-dropped")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("X-Keep", "yes")

	StripHopByHop(h)

	for _, name := range []string{"Connection", "Transfer-Encoding", "X-Custom"} {
		if h.Get(name) != "" {
			t.Errorf("expected %s stripped, got %q", name, h.Get(name))
		}
	}
	if h.Get("X-Keep") != "yes" {
		t.Error("expected unrelated header to survive stripping")
	}
}

func TestRequestAppliesInOrder(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/users?old=1", nil)
	req.Header.Set("X-Keep", "y")

	tr := &config.Transformation{
		Path:    &config.PathRule{Pattern: `^/v1/`, Replacement: "/v2/"},
		Query:   []config.QueryRule{{Kind: "remove", Name: "old"}, {Kind: "set", Name: "new", Value: "1"}},
		Headers: []config.HeaderRule{{Kind: "set", Name: "X-Added", Value: "z"}},
	}

	path := Request(req, "/v1/users", tr)
	if path != "/v2/users" {
		t.Errorf("expected rewritten path /v2/users, got %q", path)
	}
	if req.URL.Query().Get("old") != "" {
		t.Error("expected old query param removed")
	}
	if req.URL.Query().Get("new") != "1" {
		t.Error("expected new query param set")
	}
	if req.Header.Get("X-Added") != "z" {
		t.Error("expected header rule applied")
	}
}

func TestResponseAppliesStatusThenHeaders(t *testing.T) {
	resp := &http.Response{StatusCode: 502, Header: http.Header{}}
	tr := &config.Transformation{
		Status:  []config.StatusRule{{From: 502, To: 503}},
		Headers: []config.HeaderRule{{Kind: "set", Name: "X-Mapped", Value: "true"}},
	}

	Response(resp, tr)

	if resp.StatusCode != 503 {
		t.Errorf("expected remapped status 503, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Mapped") != "true" {
		t.Error("expected header rule applied to response")
	}
}

func TestRequestLeavesPathUnchangedOnNilTransformation(t *testing.T) {
	req := httptest.NewRequest("GET", "/unchanged", nil)
	path := Request(req, "/unchanged", nil)
	if path != "/unchanged" {
		t.Errorf("expected path unchanged with nil transformation, got %q", path)
	}
}
