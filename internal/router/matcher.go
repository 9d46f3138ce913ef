package router

import (
	"regexp"
	"strings"

	"github.com/wudi/kairos/internal/config"
)

// placeholderPattern finds `{name}` placeholders in an external path.
var placeholderPattern = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// compiledRoute pairs a config.Route with the machinery needed to match it:
// an allowed-method set and, for routes with placeholders, a compiled
// regex with the ordered list of parameter names it captures.
type compiledRoute struct {
	route      *config.Route
	methods    map[string]bool // nil = all methods allowed
	paramNames []string
	pattern    *regexp.Regexp // nil for a static (placeholder-free) route
}

// compileRoute builds the matcher for one route. A placeholder becomes a
// `([^/]+)` capture group in the compiled pattern; literal segments are
// escaped verbatim so regex metacharacters in a path are not special.
func compileRoute(route *config.Route) (*compiledRoute, error) {
	cr := &compiledRoute{route: route}

	if len(route.Methods) > 0 {
		cr.methods = make(map[string]bool, len(route.Methods))
		for _, m := range route.Methods {
			cr.methods[strings.ToUpper(m)] = true
		}
	}

	if !placeholderPattern.MatchString(route.ExternalPath) {
		return cr, nil
	}

	var sb strings.Builder
	sb.WriteByte('^')
	rest := route.ExternalPath
	for {
		loc := placeholderPattern.FindStringIndex(rest)
		if loc == nil {
			sb.WriteString(regexp.QuoteMeta(rest))
			break
		}
		sb.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		name := rest[loc[0]+1 : loc[1]-1]
		cr.paramNames = append(cr.paramNames, name)
		sb.WriteString("([^/]+)")
		rest = rest[loc[1]:]
	}
	sb.WriteByte('$')

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, err
	}
	cr.pattern = re
	return cr, nil
}

// allows reports whether method is permitted on this route; a route with
// no configured methods permits all of them.
func (cr *compiledRoute) allows(method string) bool {
	if cr.methods == nil {
		return true
	}
	return cr.methods[strings.ToUpper(method)]
}

// substitute renders the route's internal path template using params
// captured from the external pattern.
func substitute(template string, params map[string]string) string {
	if len(params) == 0 || !placeholderPattern.MatchString(template) {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(ph string) string {
		name := ph[1 : len(ph)-1]
		if v, ok := params[name]; ok {
			return v
		}
		return ph
	})
}
