package replay

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BatchValue is one resolved attribute of a sampled batch. Exactly one
// of Dict, Dense or List is set; all three are nil for an empty sample.
type BatchValue struct {
	// Attr is the attribute name this value resolves, preserving the
	// requested order after wildcard expansion.
	Attr string
	// Dict carries a major attribute: sub-key to stacked value.
	Dict map[string]BatchValue
	// Dense carries a concatenated tensor or a stacked scalar column.
	Dense *mat.Dense
	// List carries raw per-transition values when concatenation is off.
	List []any
}

// IsNil reports whether the value resolved to nothing (empty sample).
func (b BatchValue) IsNil() bool {
	return b.Dict == nil && b.Dense == nil && b.List == nil
}

// stackValues turns the per-transition values of one attribute into a
// single batch value. With concatenation off the raw values are returned
// as a list. With it on, tensors are relocated to the arena and
// concatenated along axis 0, and scalars become an (n, 1) column.
func stackValues(values []any, arena *Arena, concatenate bool) (BatchValue, error) {
	if len(values) == 0 {
		return BatchValue{}, nil
	}
	if !concatenate {
		return BatchValue{List: values}, nil
	}

	if _, ok := values[0].(*mat.Dense); ok {
		return concatDense(values, arena)
	}

	scalars := make([]float64, len(values))
	for i, v := range values {
		s, ok := asScalar(v)
		if !ok {
			return BatchValue{}, &ShapeError{
				Index:  i,
				Reason: fmt.Sprintf("expected scalar, got %T", v),
			}
		}
		scalars[i] = s
	}
	return BatchValue{Dense: arena.Column(scalars)}, nil
}

// concatDense concatenates tensors along the leading axis, preserving
// sampled order. Every tensor must share the first one's column count.
func concatDense(values []any, arena *Arena) (BatchValue, error) {
	first, _ := values[0].(*mat.Dense)
	_, cols := first.Dims()

	total := 0
	dense := make([]*mat.Dense, len(values))
	for i, v := range values {
		d, ok := v.(*mat.Dense)
		if !ok {
			return BatchValue{}, &ShapeError{
				Index:  i,
				Reason: fmt.Sprintf("mixed tensor and %T values", v),
			}
		}
		r, c := d.Dims()
		if c != cols {
			return BatchValue{}, &ShapeError{
				Index:  i,
				Reason: fmt.Sprintf("expected %d columns, got %d", cols, c),
			}
		}
		dense[i] = d
		total += r
	}

	data := arena.alloc(total * cols)
	off := 0
	for _, d := range dense {
		r, _ := d.Dims()
		for i := 0; i < r; i++ {
			copy(data[off:off+cols], d.RawRowView(i))
			off += cols
		}
	}
	return BatchValue{Dense: mat.NewDense(total, cols, data)}, nil
}
