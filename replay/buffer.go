// Package replay implements a bounded experience store for
// reinforcement-learning training loops. Transitions are admitted into
// a fixed-capacity ring buffer, relocated into an arena owned by the
// buffer, and later sampled into batches whose tensors are concatenated
// along the leading axis.
//
// The buffer is single-owner by design: it takes no locks. Concurrent
// callers must serialize appends and take sampling snapshots under the
// same exclusion (the service layer in this repo does exactly that).
package replay

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Buffer is a fixed-capacity ring buffer of transitions.
type Buffer struct {
	capacity int
	arena    *Arena
	items    []*Transition
	cursor   int // next overwrite slot once full
	rng      *rand.Rand
}

// New creates a buffer holding at most capacity transitions, relocating
// admitted tensors into arena. A nil arena defaults to a "cpu" arena.
func New(capacity int, arena *Arena) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer capacity must be positive, got %d", capacity)
	}
	if arena == nil {
		arena = NewArena("cpu")
	}
	return &Buffer{
		capacity: capacity,
		arena:    arena,
		items:    make([]*Transition, 0, capacity),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Capacity returns the fixed maximum occupancy.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Arena returns the arena backing stored tensors.
func (b *Buffer) Arena() *Arena {
	return b.arena
}

// Size returns the current occupancy.
func (b *Buffer) Size() int {
	return len(b.items)
}

// Clear empties the buffer and resets the write cursor.
func (b *Buffer) Clear() {
	b.items = b.items[:0]
	b.cursor = 0
}

// Spawn returns a new empty buffer with the same capacity and arena.
func (b *Buffer) Spawn() *Buffer {
	fresh, _ := New(b.capacity, b.arena)
	return fresh
}

// Append validates and admits one transition, returning the slot index
// it now occupies. A nil required set means RequiredAttrs.
//
// The transition must carry every required attribute across its major
// and sub attributes, and, once the buffer is non-empty, the same
// major/sub key set (and per-major sub-keys) as the resident schema.
// On error the buffer is unchanged. Every tensor in the transition is
// copied into the buffer's arena; the caller's values are never aliased.
func (b *Buffer) Append(t *Transition, required []string) (int, error) {
	if required == nil {
		required = RequiredAttrs
	}
	if missing := t.missingKeys(required); len(missing) > 0 {
		return 0, &SchemaError{Op: "append", Missing: missing}
	}
	if len(b.items) > 0 {
		if err := b.checkSchema(t); err != nil {
			return 0, err
		}
	}

	admitted := t.relocate(b.arena)

	// Defensive: only reachable if capacity ever shrinks; keep the most
	// recently appended entries.
	if len(b.items) > b.capacity {
		b.items = b.items[len(b.items)-b.capacity:]
		b.cursor = 0
	}
	if len(b.items) == b.capacity {
		position := b.cursor
		b.items[b.cursor] = admitted
		b.cursor = (b.cursor + 1) % b.capacity
		return position, nil
	}
	b.items = append(b.items, admitted)
	return len(b.items) - 1, nil
}

// AppendMap converts a flat attribute map (see FromMap) and appends it.
func (b *Buffer) AppendMap(attrs map[string]any, required []string) (int, error) {
	return b.Append(FromMap(attrs, required), required)
}

// AppendBatch appends transitions in order, returning the slot index of
// each. It stops at the first admission error.
func (b *Buffer) AppendBatch(ts []*Transition, required []string) ([]int, error) {
	positions := make([]int, 0, len(ts))
	for i, t := range ts {
		pos, err := b.Append(t, required)
		if err != nil {
			return positions, fmt.Errorf("transition %d: %w", i, err)
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// checkSchema compares a candidate's key set against the resident one.
func (b *Buffer) checkSchema(t *Transition) error {
	resident := b.items[0]
	got := t.attrKeys()
	want := resident.attrKeys()
	if !equalKeys(got, want) {
		return &SchemaError{Op: "append", Got: got, Want: want}
	}
	for name, dict := range resident.Major {
		if !equalKeys(majorSubKeys(t.Major[name]), majorSubKeys(dict)) {
			return &SchemaError{
				Op:   "append",
				Got:  prefixKeys(name, majorSubKeys(t.Major[name])),
				Want: prefixKeys(name, majorSubKeys(dict)),
			}
		}
	}
	return nil
}

// SampleConfig controls one SampleBatch call. The zero value samples
// nothing useful; start from NewSampleConfig.
type SampleConfig struct {
	// BatchSize is a hint; the realized size depends on the strategy.
	BatchSize int
	// Method names a registered strategy. Empty means "random_unique".
	Method string
	// Strategy, when non-nil, is used directly instead of Method.
	Strategy Strategy
	// Concatenate controls the stacking rule for major and sub
	// attributes. Custom attributes additionally need ConcatCustom.
	Concatenate bool
	// Arena overrides the buffer's arena as the stacking target.
	Arena *Arena
	// Attrs limits resolution to the listed attribute names; "*"
	// expands to the remaining custom attributes of the first sampled
	// transition. Nil means every attribute of the first transition.
	Attrs []string
	// ConcatCustom lists the custom attributes to concatenate.
	ConcatCustom []string
}

// NewSampleConfig returns the default configuration: random_unique
// sampling with concatenation enabled.
func NewSampleConfig(batchSize int) SampleConfig {
	return SampleConfig{
		BatchSize:   batchSize,
		Method:      MethodRandomUnique,
		Concatenate: true,
	}
}

// SampleBatch selects a subset of transitions via the configured
// strategy and resolves it into one batch value per requested
// attribute, in request order. The realized batch size is returned
// first; when it is zero every batch value is nil-valued.
func (b *Buffer) SampleBatch(cfg SampleConfig) (int, []BatchValue, error) {
	strat := cfg.Strategy
	if strat == nil {
		name := cfg.Method
		if name == "" {
			name = MethodRandomUnique
		}
		var err error
		strat, err = lookupStrategy(name)
		if err != nil {
			return 0, nil, err
		}
	}

	batch, size, err := strat(b.rng, b.items, cfg.BatchSize)
	if err != nil {
		return 0, nil, err
	}
	if size == 0 || len(batch) == 0 {
		values := make([]BatchValue, len(cfg.Attrs))
		for i, attr := range cfg.Attrs {
			values[i].Attr = attr
		}
		return 0, values, nil
	}

	arena := cfg.Arena
	if arena == nil {
		arena = b.arena
	}
	values, err := resolveBatch(batch, arena, cfg)
	if err != nil {
		return 0, nil, err
	}
	return size, values, nil
}

// resolveBatch applies the attribute resolution order: major, then sub,
// then wildcard expansion, then named custom attributes. Major and sub
// classification wins over custom even when names collide.
func resolveBatch(batch []*Transition, arena *Arena, cfg SampleConfig) ([]BatchValue, error) {
	first := batch[0]
	attrs := cfg.Attrs
	if attrs == nil {
		attrs = first.Keys()
	}
	concatCustom := make(map[string]bool, len(cfg.ConcatCustom))
	for _, name := range cfg.ConcatCustom {
		concatCustom[name] = true
	}

	used := make(map[string]bool, len(attrs))
	values := make([]BatchValue, 0, len(attrs))
	for _, attr := range attrs {
		if dict, ok := first.Major[attr]; ok {
			resolved, err := resolveMajor(batch, attr, dict, arena, cfg.Concatenate)
			if err != nil {
				return nil, err
			}
			values = append(values, resolved)
			used[attr] = true
			continue
		}
		if _, ok := first.Sub[attr]; ok {
			collected := make([]any, len(batch))
			for i, item := range batch {
				collected[i] = item.Sub[attr].payload()
			}
			stacked, err := stackValues(collected, arena, cfg.Concatenate)
			if err != nil {
				return nil, err
			}
			stacked.Attr = attr
			values = append(values, stacked)
			used[attr] = true
			continue
		}
		if attr == "*" {
			for _, name := range sortedKeys(first.Custom) {
				if used[name] {
					continue
				}
				resolved, err := resolveCustom(batch, name, arena,
					cfg.Concatenate && concatCustom[name])
				if err != nil {
					return nil, err
				}
				values = append(values, resolved)
				used[name] = true
			}
			continue
		}
		if _, ok := first.Custom[attr]; !ok {
			return nil, &SchemaError{Op: "sample", Missing: []string{attr}}
		}
		resolved, err := resolveCustom(batch, attr, arena,
			cfg.Concatenate && concatCustom[attr])
		if err != nil {
			return nil, err
		}
		values = append(values, resolved)
		used[attr] = true
	}
	return values, nil
}

// resolveMajor stacks each sub-key of a major attribute across the batch.
func resolveMajor(batch []*Transition, attr string, dict map[string]*mat.Dense, arena *Arena, concatenate bool) (BatchValue, error) {
	out := BatchValue{Attr: attr, Dict: make(map[string]BatchValue, len(dict))}
	for _, sub := range sortedKeys(dict) {
		collected := make([]any, len(batch))
		for i, item := range batch {
			collected[i] = item.Major[attr][sub]
		}
		stacked, err := stackValues(collected, arena, concatenate)
		if err != nil {
			return BatchValue{}, err
		}
		stacked.Attr = sub
		out.Dict[sub] = stacked
	}
	return out, nil
}

// resolveCustom stacks a custom attribute across the batch.
func resolveCustom(batch []*Transition, attr string, arena *Arena, concatenate bool) (BatchValue, error) {
	collected := make([]any, len(batch))
	for i, item := range batch {
		collected[i] = item.Custom[attr]
	}
	stacked, err := stackValues(collected, arena, concatenate)
	if err != nil {
		return BatchValue{}, err
	}
	stacked.Attr = attr
	return stacked, nil
}

// payload unwraps a sub-attribute value for stacking.
func (v Value) payload() any {
	if v.Kind == KindTensor {
		return v.Dense
	}
	return v.Scalar
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func majorSubKeys(dict map[string]*mat.Dense) []string {
	return sortedKeys(dict)
}

func prefixKeys(major string, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = major + "." + k
	}
	return out
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
