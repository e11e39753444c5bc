package workflow

import (
	"encoding/json"
	"regexp"
	"sort"
)

// placeholderPattern matches a {{key}} reference anywhere in a string.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// wholePlaceholder matches a string that is exactly one reference.
var wholePlaceholder = regexp.MustCompile(`^\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}$`)

// Resolve substitutes {{key}} placeholders in a step's arguments with values
// from the bindings and returns a new argument tree; args is never modified
// and the result shares no maps or slices with args or the bindings.
//
// A string value that is exactly one placeholder is replaced by the bound
// value itself, so arrays, objects and numbers keep their type. Placeholders
// inside longer strings, and in object keys, are replaced by the value's
// string form. Substituted values are never scanned again.
func Resolve(step int, args map[string]any, b Bindings) (map[string]any, error) {
	r := resolver{step: step, bindings: b}
	return r.object(args)
}

type resolver struct {
	step     int
	bindings Bindings
}

func (r resolver) value(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		return r.object(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			resolved, err := r.value(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		if m := wholePlaceholder.FindStringSubmatch(t); m != nil {
			bound, err := r.lookup(m[1])
			if err != nil {
				return nil, err
			}
			return cloneValue(bound), nil
		}
		return r.text(t)
	default:
		return v, nil
	}
}

// object walks keys in sorted order so the first unresolved reference
// reported is deterministic.
func (r resolver) object(m map[string]any) (map[string]any, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		key, err := r.text(k)
		if err != nil {
			return nil, err
		}
		if _, dup := out[key]; dup {
			return nil, r.malformed("key %q appears twice after substitution", key)
		}
		resolved, err := r.value(m[k])
		if err != nil {
			return nil, err
		}
		out[key] = resolved
	}
	return out, nil
}

// text replaces every placeholder in s with the string form of its value.
func (r resolver) text(s string) (string, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var out []byte
	last := 0
	for _, m := range matches {
		bound, err := r.lookup(s[m[2]:m[3]])
		if err != nil {
			return "", err
		}
		form, err := stringForm(bound)
		if err != nil {
			return "", r.malformed("binding %q is not serializable", s[m[2]:m[3]]).withCause(err)
		}
		out = append(out, s[last:m[0]]...)
		out = append(out, form...)
		last = m[1]
	}
	out = append(out, s[last:]...)
	return string(out), nil
}

func (r resolver) lookup(key string) (any, error) {
	v, ok := r.bindings[key]
	if !ok {
		e := newError(ErrUnresolvedBinding, "binding %q is not available", key)
		e.Step = r.step
		e.Key = key
		return nil, e
	}
	return v, nil
}

func (r resolver) malformed(format string, args ...any) *Error {
	e := newError(ErrMalformedArguments, format, args...)
	e.Step = r.step
	return e
}

// stringForm renders a bound value for embedding inside text. Strings are
// used as-is, everything else as JSON.
func stringForm(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(enc), nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
