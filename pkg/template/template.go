// Package template substitutes ${name} placeholders in nested policy
// documents. Documents are trees of goccy/go-yaml ordered maps, plain
// maps, slices and scalars; key order survives substitution.
package template

import (
	"fmt"
	"regexp"

	"github.com/goccy/go-yaml"
)

var placeholder = regexp.MustCompile(`\$\{(.*?)\}`)

// Apply returns a copy of data with every placeholder in every string
// replaced. Non-string scalars pass through unchanged.
func Apply(data any, ctx Context) (any, error) {
	switch v := data.(type) {
	case string:
		return ApplyString(v, ctx)
	case yaml.MapSlice:
		out := make(yaml.MapSlice, 0, len(v))
		for _, item := range v {
			value, err := Apply(item.Value, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, yaml.MapItem{Key: item.Key, Value: value})
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			value, err := Apply(item, ctx)
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			value, err := Apply(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = value
		}
		return out, nil
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			s, err := ApplyString(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		return data, nil
	}
}

// ApplyString substitutes the placeholders of a single string.
func ApplyString(s string, ctx Context) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := placeholder.FindStringSubmatch(match)[1]
		value, err := ctx.Lookup(name)
		if err != nil {
			firstErr = err
			return match
		}
		if str, ok := value.(string); ok {
			return str
		}
		return fmt.Sprint(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Plain converts ordered maps into map[string]any recursively so the
// tree can be handed to encoding/json or mapstructure.
func Plain(data any) any {
	switch v := data.(type) {
	case yaml.MapSlice:
		out := make(map[string]any, len(v))
		for _, item := range v {
			out[fmt.Sprint(item.Key)] = Plain(item.Value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Plain(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Plain(item)
		}
		return out
	default:
		return data
	}
}

// Clone deep-copies a document tree, keeping placeholders as they are.
func Clone(data any) any {
	switch v := data.(type) {
	case yaml.MapSlice:
		out := make(yaml.MapSlice, len(v))
		for i, item := range v {
			out[i] = yaml.MapItem{Key: item.Key, Value: Clone(item.Value)}
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return data
	}
}

// Set returns a copy of an ordered map with key bound to value, replacing
// an existing entry in place or appending a new one.
func Set(m yaml.MapSlice, key string, value any) yaml.MapSlice {
	out := make(yaml.MapSlice, 0, len(m)+1)
	found := false
	for _, item := range m {
		if fmt.Sprint(item.Key) == key {
			out = append(out, yaml.MapItem{Key: item.Key, Value: value})
			found = true
			continue
		}
		out = append(out, item)
	}
	if !found {
		out = append(out, yaml.MapItem{Key: key, Value: value})
	}
	return out
}
