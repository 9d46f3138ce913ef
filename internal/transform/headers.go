package transform

import (
	"net/http"
	"regexp"

	"github.com/wudi/kairos/internal/config"
)

// ApplyHeaderRules applies header rewrite rules to header in order. Kind is
// one of add (set only if absent), set (unconditional), remove, or replace
// (regex pattern/replacement applied to the current value).
func ApplyHeaderRules(header http.Header, rules []config.HeaderRule) {
	for _, rule := range rules {
		switch rule.Kind {
		case "add":
			if header.Get(rule.Name) == "" {
				header.Set(rule.Name, rule.Value)
			}
		case "set":
			header.Set(rule.Name, rule.Value)
		case "remove":
			header.Del(rule.Name)
		case "replace":
			replaceHeader(header, rule)
		}
	}
}

func replaceHeader(header http.Header, rule config.HeaderRule) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return
	}
	current := header.Get(rule.Name)
	if current == "" {
		return
	}
	header.Set(rule.Name, re.ReplaceAllString(current, rule.Replacement))
}
