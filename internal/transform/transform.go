// Package transform applies a route's ordered request/response rewrite
// rules: path regex, query add/set/remove, header add/set/remove/replace,
// and (on responses) status-code remapping. Hop-by-hop headers are always
// stripped, independent of any configured rule.
package transform

import (
	"net/http"

	"github.com/wudi/kairos/internal/config"
)

// Request applies t to r in the spec's fixed order: path regex (path is
// already placeholder-substituted by the router), then query, then
// headers. Returns the possibly-rewritten path for the caller to use when
// building the upstream URL.
func Request(r *http.Request, internalPath string, t *config.Transformation) string {
	path := internalPath
	if t != nil {
		if t.Path != nil {
			path = ApplyPathRule(path, t.Path)
		}
		if len(t.Query) > 0 {
			values := r.URL.Query()
			ApplyQueryRules(values, t.Query)
			r.URL.RawQuery = values.Encode()
		}
		ApplyHeaderRules(r.Header, t.Headers)
	}
	StripHopByHop(r.Header)
	return path
}

// Response applies t to resp in the spec's fixed order: status mapping,
// then headers.
func Response(resp *http.Response, t *config.Transformation) {
	if t != nil {
		if len(t.Status) > 0 {
			resp.StatusCode = ApplyStatusRules(resp.StatusCode, t.Status)
		}
		ApplyHeaderRules(resp.Header, t.Headers)
	}
	StripHopByHop(resp.Header)
}
