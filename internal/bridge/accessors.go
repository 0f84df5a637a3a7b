// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import "fmt"

// getString requires key in m to be a non-empty string.
func getString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", configErr(fmt.Sprintf("%s: required", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", configErr(fmt.Sprintf("%s: must be a string, got %T", key, v))
	}
	if s == "" {
		return "", configErr(fmt.Sprintf("%s: must not be empty", key))
	}
	return s, nil
}

// getOptionalString returns "" when key is absent.
func getOptionalString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", configErr(fmt.Sprintf("%s: must be a string, got %T", key, v))
	}
	return s, nil
}

// getMap requires key in m to be an object.
func getMap(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, configErr(fmt.Sprintf("%s: required", key))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, configErr(fmt.Sprintf("%s: must be an object, got %T", key, v))
	}
	return obj, nil
}

// getSlice requires key in m to be an array.
func getSlice(m map[string]any, key string) ([]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, configErr(fmt.Sprintf("%s: required", key))
	}
	s, ok := v.([]any)
	if !ok {
		return nil, configErr(fmt.Sprintf("%s: must be an array, got %T", key, v))
	}
	return s, nil
}

// getOptionalSlice returns nil when key is absent.
func getOptionalSlice(m map[string]any, key string) ([]any, error) {
	if _, ok := m[key]; !ok {
		return nil, nil
	}
	return getSlice(m, key)
}

// getOptionalStringSlice returns nil when key is absent, otherwise requires
// every element to be a string.
func getOptionalStringSlice(m map[string]any, key string) ([]string, error) {
	raw, err := getOptionalSlice(m, key)
	if err != nil || raw == nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, configErr(fmt.Sprintf("%s[%d]: must be a string, got %T", key, i, v))
		}
		out[i] = s
	}
	return out, nil
}

// getOptionalStringMap returns nil when key is absent, otherwise requires
// every value to be a string.
func getOptionalStringMap(m map[string]any, key string) (map[string]string, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, configErr(fmt.Sprintf("%s: must be an object, got %T", key, v))
	}
	out := make(map[string]string, len(raw))
	for k, rv := range raw {
		s, ok := rv.(string)
		if !ok {
			return nil, configErr(fmt.Sprintf("%s.%s: must be a string, got %T", key, k, rv))
		}
		out[k] = s
	}
	return out, nil
}

// getOptionalBool returns false when key is absent.
func getOptionalBool(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, configErr(fmt.Sprintf("%s: must be a boolean, got %T", key, v))
	}
	return b, nil
}
