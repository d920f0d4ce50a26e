// Package merge combines partial profile documents and reports what changed.
//
// Documents are the shape encoding/json produces for arbitrary objects:
// map[string]any for objects, []any for arrays, nil for null.
package merge

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/yoockh/fitcoach/internal/models"
)

// DeepMerge returns a new document holding target with update applied.
//
// Nested objects merge key by key, arrays replace the target array whole,
// an explicit nil clears the key, and keys missing from update are kept.
// Neither argument is modified.
func DeepMerge(target, update map[string]any) map[string]any {
	out := Clone(target)
	if out == nil {
		out = map[string]any{}
	}
	if update == nil {
		return out
	}
	for key, uv := range update {
		if uv == nil {
			out[key] = nil
			continue
		}
		if um, ok := asObject(uv); ok {
			if tm, ok := asObject(target[key]); ok {
				out[key] = DeepMerge(tm, um)
				continue
			}
		}
		out[key] = cloneValue(uv)
	}
	return out
}

// ExtractChanges lists every leaf whose JSON encoding differs between
// original and updated. Objects present on both sides are walked instead of
// reported whole. The result is sorted by path.
func ExtractChanges(original, updated map[string]any) []models.FieldChange {
	var out []models.FieldChange
	compare(original, updated, "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func compare(orig, upd map[string]any, prefix string, out *[]models.FieldChange) {
	keys := make(map[string]struct{}, len(orig)+len(upd))
	for k := range orig {
		keys[k] = struct{}{}
	}
	for k := range upd {
		keys[k] = struct{}{}
	}

	for key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		ov, inOrig := orig[key]
		uv, inUpd := upd[key]
		if inOrig == inUpd && sameJSON(ov, uv) {
			continue
		}

		om, oIsObj := asObject(ov)
		um, uIsObj := asObject(uv)
		if inOrig && inUpd && oIsObj && uIsObj {
			compare(om, um, path, out)
			continue
		}
		*out = append(*out, models.FieldChange{Path: path, Before: ov, After: uv})
	}
}

func sameJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ab) == string(bb)
}

// Clone deep-copies a document.
func Clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	default:
		return v
	}
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// Decode parses a stored JSON object. Empty input yields an empty document.
func Decode(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
