package replay

import (
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// Arena is a named allocator that owns the backing storage of tensors
// held by a buffer. Appending a transition relocates its tensors into
// the buffer's arena, so callers keep ownership of whatever they passed
// in and the buffer never aliases caller-owned data.
type Arena struct {
	name      string
	allocated atomic.Uint64 // cumulative bytes handed out
}

// NewArena creates an arena with the given name. The name is an opaque
// placement label ("cpu", "pinned", ...) carried through stats and logs.
func NewArena(name string) *Arena {
	return &Arena{name: name}
}

// Name returns the arena's placement label.
func (a *Arena) Name() string {
	return a.name
}

// AllocatedBytes returns the cumulative number of bytes allocated from
// this arena.
func (a *Arena) AllocatedBytes() uint64 {
	return a.allocated.Load()
}

func (a *Arena) alloc(n int) []float64 {
	a.allocated.Add(uint64(n) * 8)
	return make([]float64, n)
}

// Clone copies d into storage owned by the arena. A nil input yields nil.
func (a *Arena) Clone(d *mat.Dense) *mat.Dense {
	if d == nil {
		return nil
	}
	r, c := d.Dims()
	data := a.alloc(r * c)
	for i := 0; i < r; i++ {
		copy(data[i*c:(i+1)*c], d.RawRowView(i))
	}
	return mat.NewDense(r, c, data)
}

// Column builds an (n, 1) tensor from scalars, backed by arena storage.
func (a *Arena) Column(values []float64) *mat.Dense {
	data := a.alloc(len(values))
	copy(data, values)
	return mat.NewDense(len(values), 1, data)
}
