package transform

import "github.com/wudi/kairos/internal/config"

// ApplyStatusRules remaps status through rules in order; the first
// matching From wins. Status is returned unchanged if nothing matches.
func ApplyStatusRules(status int, rules []config.StatusRule) int {
	for _, rule := range rules {
		if rule.From == status {
			return rule.To
		}
	}
	return status
}
