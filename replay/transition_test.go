package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestFromMap_Classification(t *testing.T) {
	tr := FromMap(map[string]any{
		"state":      map[string]*mat.Dense{"position": mat.NewDense(1, 2, []float64{1, 2})},
		"action":     map[string]*mat.Dense{"move": mat.NewDense(1, 1, []float64{0})},
		"next_state": map[string]*mat.Dense{"position": mat.NewDense(1, 2, []float64{3, 4})},
		"reward":     1.5,
		"terminal":   false,
		"step":       7,
		"note":       "opening",
	}, nil)

	assert.Len(t, tr.Major, 3)
	assert.Contains(t, tr.Major, "state")
	assert.Contains(t, tr.Major, "next_state")

	assert.Len(t, tr.Sub, 2)
	assert.Equal(t, ScalarValue(1.5), tr.Sub["reward"])
	assert.Equal(t, ScalarValue(0), tr.Sub["terminal"])

	assert.Len(t, tr.Custom, 2)
	assert.Equal(t, 7, tr.Custom["step"])
	assert.Equal(t, "opening", tr.Custom["note"])
}

func TestFromMap_TensorSub(t *testing.T) {
	reward := mat.NewDense(1, 1, []float64{2})
	tr := FromMap(map[string]any{"reward": reward}, []string{"reward"})

	assert.Empty(t, tr.Major)
	assert.Equal(t, KindTensor, tr.Sub["reward"].Kind)
	assert.Same(t, reward, tr.Sub["reward"].Dense)
}

func TestTransition_Keys(t *testing.T) {
	tr := minimalTransition(1)
	tr.Custom = map[string]any{"step": 1, "note": "x"}

	assert.Equal(t,
		[]string{"action", "next_state", "state", "reward", "terminal", "note", "step"},
		tr.Keys())
}

func TestTransition_HasKeys(t *testing.T) {
	tr := minimalTransition(1)

	assert.True(t, tr.HasKeys(RequiredAttrs))
	assert.False(t, tr.HasKeys([]string{"state", "advantage"}))
	assert.Equal(t, []string{"advantage"}, tr.missingKeys([]string{"state", "advantage"}))
}

func TestTransition_RelocateCopies(t *testing.T) {
	arena := NewArena("cpu")
	position := mat.NewDense(1, 2, []float64{1, 2})
	tr := minimalTransition(1)
	tr.Major["state"]["position"] = position

	moved := tr.relocate(arena)
	position.Set(0, 0, 99)

	assert.Equal(t, 1.0, moved.Major["state"]["position"].At(0, 0))
	assert.Greater(t, arena.AllocatedBytes(), uint64(0))
}

// minimalTransition builds a transition carrying exactly the default
// required attributes, with reward as its distinguishing value.
func minimalTransition(reward float64) *Transition {
	return &Transition{
		Major: map[string]map[string]*mat.Dense{
			"state":      {"position": mat.NewDense(1, 2, []float64{reward, 0})},
			"action":     {"move": mat.NewDense(1, 1, []float64{reward})},
			"next_state": {"position": mat.NewDense(1, 2, []float64{reward, 1})},
		},
		Sub: map[string]Value{
			"reward":   ScalarValue(reward),
			"terminal": BoolValue(false),
		},
	}
}
