package replay

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// RequiredAttrs is the default attribute set a transition must carry
// across its major and sub attributes before admission.
var RequiredAttrs = []string{"state", "action", "next_state", "reward", "terminal"}

// ValueKind discriminates the two payload shapes a sub attribute can hold.
type ValueKind int

const (
	KindScalar ValueKind = iota
	KindTensor
)

// Value is a sub-attribute payload: either a scalar or a dense tensor.
type Value struct {
	Kind   ValueKind
	Scalar float64
	Dense  *mat.Dense
}

// ScalarValue wraps a scalar.
func ScalarValue(v float64) Value {
	return Value{Kind: KindScalar, Scalar: v}
}

// BoolValue wraps a boolean as a 0/1 scalar.
func BoolValue(v bool) Value {
	if v {
		return Value{Kind: KindScalar, Scalar: 1}
	}
	return Value{Kind: KindScalar, Scalar: 0}
}

// TensorValue wraps a dense tensor.
func TensorValue(d *mat.Dense) Value {
	return Value{Kind: KindTensor, Dense: d}
}

// Transition is one stored interaction. Major attributes map a name to a
// dictionary of named tensors (e.g. a structured state), sub attributes
// hold one scalar or tensor each (e.g. reward), and custom attributes
// carry any extra per-step data the training loop wants to keep.
type Transition struct {
	Major  map[string]map[string]*mat.Dense
	Sub    map[string]Value
	Custom map[string]any
}

// FromMap builds a transition from a flat attribute map. Entries whose
// value is a map of tensors become major attributes; scalar or tensor
// entries named in required become sub attributes; everything else is
// custom.
func FromMap(attrs map[string]any, required []string) *Transition {
	if required == nil {
		required = RequiredAttrs
	}
	req := make(map[string]bool, len(required))
	for _, name := range required {
		req[name] = true
	}

	t := &Transition{
		Major:  make(map[string]map[string]*mat.Dense),
		Sub:    make(map[string]Value),
		Custom: make(map[string]any),
	}
	for name, v := range attrs {
		switch x := v.(type) {
		case map[string]*mat.Dense:
			t.Major[name] = x
		case *mat.Dense:
			if req[name] {
				t.Sub[name] = TensorValue(x)
			} else {
				t.Custom[name] = x
			}
		default:
			if s, ok := asScalar(v); ok && req[name] {
				t.Sub[name] = ScalarValue(s)
			} else {
				t.Custom[name] = x
			}
		}
	}
	return t
}

// Keys returns all attribute names, majors first, then subs, then
// customs, each group sorted.
func (t *Transition) Keys() []string {
	keys := t.attrKeys()
	custom := make([]string, 0, len(t.Custom))
	for name := range t.Custom {
		custom = append(custom, name)
	}
	sort.Strings(custom)
	return append(keys, custom...)
}

// attrKeys returns the major and sub attribute names, each group sorted.
func (t *Transition) attrKeys() []string {
	keys := make([]string, 0, len(t.Major)+len(t.Sub))
	for name := range t.Major {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	sub := make([]string, 0, len(t.Sub))
	for name := range t.Sub {
		sub = append(sub, name)
	}
	sort.Strings(sub)
	return append(keys, sub...)
}

// HasKeys reports whether every name in required is present as a major
// or sub attribute.
func (t *Transition) HasKeys(required []string) bool {
	for _, name := range required {
		if _, ok := t.Major[name]; ok {
			continue
		}
		if _, ok := t.Sub[name]; ok {
			continue
		}
		return false
	}
	return true
}

// missingKeys returns the names in required absent from major and sub.
func (t *Transition) missingKeys(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := t.Major[name]; ok {
			continue
		}
		if _, ok := t.Sub[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	return missing
}

// relocate deep-copies every tensor into the arena and returns the
// relocated transition. Scalar and non-tensor custom values are carried
// over as-is.
func (t *Transition) relocate(a *Arena) *Transition {
	out := &Transition{
		Major:  make(map[string]map[string]*mat.Dense, len(t.Major)),
		Sub:    make(map[string]Value, len(t.Sub)),
		Custom: make(map[string]any, len(t.Custom)),
	}
	for name, dict := range t.Major {
		moved := make(map[string]*mat.Dense, len(dict))
		for sub, d := range dict {
			moved[sub] = a.Clone(d)
		}
		out.Major[name] = moved
	}
	for name, v := range t.Sub {
		if v.Kind == KindTensor {
			out.Sub[name] = TensorValue(a.Clone(v.Dense))
		} else {
			out.Sub[name] = v
		}
	}
	for name, v := range t.Custom {
		if d, ok := v.(*mat.Dense); ok {
			out.Custom[name] = a.Clone(d)
		} else {
			out.Custom[name] = v
		}
	}
	return out
}

// asScalar reports whether v is a scalar-ish value and its float64 form.
func asScalar(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
