package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads a JSON configuration document from path, expands ${VAR} and
// ${VAR:-default} environment references, and validates the result. The
// returned ActiveConfig is ready to publish via Store.Replace.
func Load(path string) (*ActiveConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := expandEnv(raw)

	var cfg ActiveConfig
	if err := json.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} references found
// anywhere in the raw document before JSON parsing.
func expandEnv(raw []byte) []byte {
	return envVarRe.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarRe.FindSubmatch(match)
		name := string(groups[1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		if len(groups) > 2 && len(groups[2]) > 0 {
			return groups[2]
		}
		return []byte{}
	})
}
