package adminapi

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/wudi/kairos/internal/config"
)

// mergePatch applies a shallow JSON merge patch onto route: every top-level
// field present in patchBody overwrites the corresponding field on route;
// fields route already has but patchBody omits are left untouched. gjson
// walks the patch body's fields without requiring a matching Go struct on
// the way in, so a caller can send `{"auth_required": true}` without
// resending backends, retry policy, and the rest of the route.
func mergePatch(route config.Route, patchBody []byte) (config.Route, error) {
	if !gjson.ValidBytes(patchBody) {
		return config.Route{}, fmt.Errorf("patch body is not valid JSON")
	}

	existing, err := json.Marshal(route)
	if err != nil {
		return config.Route{}, fmt.Errorf("marshal existing route: %w", err)
	}

	merged := map[string]any{}
	if err := json.Unmarshal(existing, &merged); err != nil {
		return config.Route{}, fmt.Errorf("unmarshal existing route: %w", err)
	}

	patch := gjson.ParseBytes(patchBody)
	if !patch.IsObject() {
		return config.Route{}, fmt.Errorf("patch body must be a JSON object")
	}

	var walkErr error
	patch.ForEach(func(key, value gjson.Result) bool {
		if !value.Exists() || value.Type == gjson.Null {
			delete(merged, key.String())
			return true
		}
		var decoded any
		if err := json.Unmarshal([]byte(value.Raw), &decoded); err != nil {
			walkErr = fmt.Errorf("field %q: %w", key.String(), err)
			return false
		}
		merged[key.String()] = decoded
		return true
	})
	if walkErr != nil {
		return config.Route{}, walkErr
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return config.Route{}, fmt.Errorf("marshal merged route: %w", err)
	}

	var result config.Route
	if err := json.Unmarshal(mergedJSON, &result); err != nil {
		return config.Route{}, fmt.Errorf("unmarshal merged route: %w", err)
	}
	return result, nil
}
