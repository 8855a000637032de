package replay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptySample indicates a with-replacement sample was requested
	// from an empty buffer.
	ErrEmptySample = errors.New("cannot sample with replacement from an empty buffer")
)

// SchemaError reports a transition whose attribute keys do not satisfy
// the buffer's schema.
type SchemaError struct {
	Op      string   // "append" or "sample"
	Missing []string // required attributes absent from the transition
	Got     []string // candidate key set, when it disagrees with the resident schema
	Want    []string // resident key set
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: transition missing attributes: %s",
			e.Op, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: transition attributes [%s] differ from stored schema [%s]",
		e.Op, strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}

// UnknownStrategyError reports a sample method name with no registered
// strategy.
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown sample method: %q", e.Name)
}

// ShapeError reports batch values that cannot be stacked into a single
// tensor.
type ShapeError struct {
	Index  int // position within the sampled batch
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("cannot stack value at batch index %d: %s", e.Index, e.Reason)
}
