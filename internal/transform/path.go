package transform

import (
	"regexp"

	"github.com/wudi/kairos/internal/config"
)

// ApplyPathRule rewrites path with rule's regex pattern/replacement,
// applied after placeholder substitution into the internal path template.
// An invalid pattern leaves path unchanged.
func ApplyPathRule(path string, rule *config.PathRule) string {
	if rule == nil {
		return path
	}
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return path
	}
	return re.ReplaceAllString(path, rule.Replacement)
}
