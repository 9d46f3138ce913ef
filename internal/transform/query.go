package transform

import (
	"net/url"

	"github.com/wudi/kairos/internal/config"
)

// ApplyQueryRules applies query-parameter rewrite rules to values in order.
// Kind is one of add (set only if absent), set (unconditional), or remove.
func ApplyQueryRules(values url.Values, rules []config.QueryRule) {
	for _, rule := range rules {
		switch rule.Kind {
		case "add":
			if values.Get(rule.Name) == "" {
				values.Set(rule.Name, rule.Value)
			}
		case "set":
			values.Set(rule.Name, rule.Value)
		case "remove":
			values.Del(rule.Name)
		}
	}
}
