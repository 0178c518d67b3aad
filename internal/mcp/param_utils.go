package mcp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/standardbeagle/methodmap/internal/types"
)

// UnknownField is an argument the tool does not recognize. It is reported
// back as a warning instead of failing the call.
type UnknownField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// decodeArgs unmarshals tool arguments into v, a pointer to a params struct,
// and lists any argument that matches none of its json tags
func decodeArgs(data json.RawMessage, v interface{}) ([]UnknownField, error) {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	known := jsonFieldNames(v)
	var warnings []UnknownField
	for key, value := range raw {
		if _, ok := known[key]; !ok {
			warnings = append(warnings, decodeUnknownField(key, value))
		}
	}
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Name < warnings[j].Name })
	return warnings, nil
}

func jsonFieldNames(v interface{}) map[string]struct{} {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	names := make(map[string]struct{})
	if t.Kind() != reflect.Struct {
		return names
	}
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "-" {
			continue
		}
		names[name] = struct{}{}
	}
	return names
}

func decodeUnknownField(name string, data json.RawMessage) UnknownField {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		value = string(data)
	}
	return UnknownField{Name: name, Value: value}
}

// parseRoles converts role names, rejecting unknown ones. A nil input stays
// nil so the configured default applies; an empty list stays empty.
func parseRoles(names []string) ([]types.Role, error) {
	if names == nil {
		return nil, nil
	}
	roles := make([]types.Role, 0, len(names))
	for _, n := range names {
		r, ok := types.ParseRole(n)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", n)
		}
		roles = append(roles, r)
	}
	return roles, nil
}
