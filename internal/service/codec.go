package service

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cartridge/experience/replay"
)

// DenseJSON is the wire form of a dense tensor, row-major.
type DenseJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// ValueJSON is the wire form of a sub-attribute value. Exactly one
// field must be set.
type ValueJSON struct {
	Scalar *float64   `json:"scalar,omitempty"`
	Dense  *DenseJSON `json:"dense,omitempty"`
}

// TransitionJSON is the wire form of one transition.
type TransitionJSON struct {
	Major  map[string]map[string]DenseJSON `json:"major,omitempty"`
	Sub    map[string]ValueJSON            `json:"sub,omitempty"`
	Custom map[string]any                  `json:"custom,omitempty"`
}

// SampleRequest selects and shapes a training batch.
type SampleRequest struct {
	BatchSize    int      `json:"batch_size"`
	Method       string   `json:"method,omitempty"`
	Concatenate  *bool    `json:"concatenate,omitempty"` // nil means true
	Attrs        []string `json:"attrs,omitempty"`
	ConcatCustom []string `json:"concat_custom,omitempty"`
}

// BatchValueJSON is the wire form of one resolved batch attribute.
type BatchValueJSON struct {
	Attr  string                    `json:"attr"`
	Dict  map[string]BatchValueJSON `json:"dict,omitempty"`
	Dense *DenseJSON                `json:"dense,omitempty"`
	List  []any                     `json:"list,omitempty"`
}

// SampleResponse carries the realized batch.
type SampleResponse struct {
	BatchSize int              `json:"batch_size"`
	Values    []BatchValueJSON `json:"values"`
}

// AppendResponse reports the slot a transition landed in.
type AppendResponse struct {
	Position int `json:"position"`
	Size     int `json:"size"`
}

// AppendBatchResponse reports the slots a group of transitions landed in.
type AppendBatchResponse struct {
	Positions []int `json:"positions"`
	Size      int   `json:"size"`
}

// StatsResponse summarizes buffer state.
type StatsResponse struct {
	Size            int    `json:"size"`
	Capacity        int    `json:"capacity"`
	Arena           string `json:"arena"`
	ArenaBytes      uint64 `json:"arena_bytes"`
	TotalAppends    uint64 `json:"total_appends"`
	TotalOverwrites uint64 `json:"total_overwrites"`
	TotalSamples    uint64 `json:"total_samples"`
}

// ClearResponse reports how many transitions a clear dropped.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// DecodeError reports a wire payload that cannot be converted into
// core types.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (d DenseJSON) toDense() (*mat.Dense, error) {
	if d.Rows <= 0 || d.Cols <= 0 {
		return nil, fmt.Errorf("invalid tensor dims %dx%d", d.Rows, d.Cols)
	}
	if len(d.Data) != d.Rows*d.Cols {
		return nil, fmt.Errorf("tensor data length %d does not match dims %dx%d",
			len(d.Data), d.Rows, d.Cols)
	}
	return mat.NewDense(d.Rows, d.Cols, d.Data), nil
}

func denseJSON(d *mat.Dense) *DenseJSON {
	if d == nil {
		return nil
	}
	r, c := d.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, d.RawRowView(i)...)
	}
	return &DenseJSON{Rows: r, Cols: c, Data: data}
}

func (t TransitionJSON) toTransition() (*replay.Transition, error) {
	out := &replay.Transition{
		Major:  make(map[string]map[string]*mat.Dense, len(t.Major)),
		Sub:    make(map[string]replay.Value, len(t.Sub)),
		Custom: make(map[string]any, len(t.Custom)),
	}
	for name, dict := range t.Major {
		moved := make(map[string]*mat.Dense, len(dict))
		for sub, d := range dict {
			dense, err := d.toDense()
			if err != nil {
				return nil, &DecodeError{Field: "major attribute " + name + "." + sub, Err: err}
			}
			moved[sub] = dense
		}
		out.Major[name] = moved
	}
	for name, v := range t.Sub {
		switch {
		case v.Scalar != nil && v.Dense == nil:
			out.Sub[name] = replay.ScalarValue(*v.Scalar)
		case v.Dense != nil && v.Scalar == nil:
			dense, err := v.Dense.toDense()
			if err != nil {
				return nil, &DecodeError{Field: "sub attribute " + name, Err: err}
			}
			out.Sub[name] = replay.TensorValue(dense)
		default:
			return nil, &DecodeError{
				Field: "sub attribute " + name,
				Err:   fmt.Errorf("exactly one of scalar, dense must be set"),
			}
		}
	}
	for name, v := range t.Custom {
		out.Custom[name] = v
	}
	return out, nil
}

func batchValueJSON(v replay.BatchValue) BatchValueJSON {
	out := BatchValueJSON{Attr: v.Attr}
	switch {
	case v.Dict != nil:
		out.Dict = make(map[string]BatchValueJSON, len(v.Dict))
		for sub, inner := range v.Dict {
			out.Dict[sub] = batchValueJSON(inner)
		}
	case v.Dense != nil:
		out.Dense = denseJSON(v.Dense)
	case v.List != nil:
		out.List = make([]any, len(v.List))
		for i, item := range v.List {
			if d, ok := item.(*mat.Dense); ok {
				out.List[i] = denseJSON(d)
			} else {
				out.List[i] = item
			}
		}
	}
	return out
}
