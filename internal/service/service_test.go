package service

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/experience/internal/events"
	"github.com/cartridge/experience/internal/metrics"
	"github.com/cartridge/experience/replay"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	events []events.BufferEvent
}

func (c *capturePublisher) PublishBufferEvent(_ context.Context, event events.BufferEvent) error {
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() {}

func newTestService(t *testing.T, capacity int) (*Service, *capturePublisher) {
	t.Helper()
	buf, err := replay.New(capacity, replay.NewArena("cpu"))
	require.NoError(t, err)

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	publisher := &capturePublisher{}
	return New(buf, 4, logger, metrics.NewCollector(logger), publisher), publisher
}

func scalar(v float64) ValueJSON {
	return ValueJSON{Scalar: &v}
}

func wireTransition(reward float64) TransitionJSON {
	return TransitionJSON{
		Major: map[string]map[string]DenseJSON{
			"state":      {"position": {Rows: 1, Cols: 2, Data: []float64{reward, 0}}},
			"action":     {"move": {Rows: 1, Cols: 1, Data: []float64{reward}}},
			"next_state": {"position": {Rows: 1, Cols: 2, Data: []float64{reward, 1}}},
		},
		Sub: map[string]ValueJSON{
			"reward":   scalar(reward),
			"terminal": scalar(0),
		},
	}
}

func TestService_Append(t *testing.T) {
	svc, publisher := newTestService(t, 4)
	ctx := context.Background()

	resp, err := svc.Append(ctx, wireTransition(1))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Position)
	assert.Equal(t, 1, resp.Size)

	stats := svc.Stats(ctx)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 4, stats.Capacity)
	assert.Equal(t, "cpu", stats.Arena)
	assert.Equal(t, uint64(1), stats.TotalAppends)
	assert.Greater(t, stats.ArenaBytes, uint64(0))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.TypeAppend, publisher.events[0].Type)
}

func TestService_AppendSchemaError(t *testing.T) {
	svc, _ := newTestService(t, 4)

	bad := wireTransition(1)
	delete(bad.Sub, "reward")

	_, err := svc.Append(context.Background(), bad)
	var schemaErr *replay.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, 0, svc.Size())
}

func TestService_AppendDecodeError(t *testing.T) {
	svc, _ := newTestService(t, 4)

	bad := wireTransition(1)
	bad.Sub["reward"] = ValueJSON{}

	_, err := svc.Append(context.Background(), bad)
	assert.Error(t, err)

	bad = wireTransition(1)
	bad.Major["state"]["position"] = DenseJSON{Rows: 2, Cols: 2, Data: []float64{1}}
	_, err = svc.Append(context.Background(), bad)
	assert.Error(t, err)
}

func TestService_OverwriteCounter(t *testing.T) {
	svc, _ := newTestService(t, 1)
	ctx := context.Background()

	_, err := svc.Append(ctx, wireTransition(1))
	require.NoError(t, err)
	_, err = svc.Append(ctx, wireTransition(2))
	require.NoError(t, err)

	stats := svc.Stats(ctx)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(2), stats.TotalAppends)
	assert.Equal(t, uint64(1), stats.TotalOverwrites)
}

func TestService_AppendBatch(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	resp, err := svc.AppendBatch(ctx, []TransitionJSON{
		wireTransition(1), wireTransition(2), wireTransition(3),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0}, resp.Positions)
	assert.Equal(t, 2, resp.Size)

	stats := svc.Stats(ctx)
	assert.Equal(t, uint64(3), stats.TotalAppends)
	assert.Equal(t, uint64(1), stats.TotalOverwrites)
}

func TestService_Sample(t *testing.T) {
	svc, publisher := newTestService(t, 4)
	ctx := context.Background()

	for _, r := range []float64{1, 2, 3} {
		_, err := svc.Append(ctx, wireTransition(r))
		require.NoError(t, err)
	}

	resp, err := svc.Sample(ctx, SampleRequest{
		BatchSize: 3,
		Method:    replay.MethodAll,
		Attrs:     []string{"reward", "state"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.BatchSize)
	require.Len(t, resp.Values, 2)

	reward := resp.Values[0]
	assert.Equal(t, "reward", reward.Attr)
	require.NotNil(t, reward.Dense)
	assert.Equal(t, 3, reward.Dense.Rows)
	assert.Equal(t, 1, reward.Dense.Cols)
	assert.Equal(t, []float64{1, 2, 3}, reward.Dense.Data)

	state := resp.Values[1]
	require.Contains(t, state.Dict, "position")
	assert.Equal(t, 3, state.Dict["position"].Dense.Rows)
	assert.Equal(t, 2, state.Dict["position"].Dense.Cols)

	last := publisher.events[len(publisher.events)-1]
	assert.Equal(t, events.TypeSample, last.Type)
	assert.Equal(t, replay.MethodAll, last.Method)

	stats := svc.Stats(ctx)
	assert.Equal(t, uint64(1), stats.TotalSamples)
}

func TestService_SampleDefaults(t *testing.T) {
	svc, _ := newTestService(t, 8)
	ctx := context.Background()

	for _, r := range []float64{1, 2} {
		_, err := svc.Append(ctx, wireTransition(r))
		require.NoError(t, err)
	}

	// Empty request: default batch size, random_unique, concatenate on.
	resp, err := svc.Sample(ctx, SampleRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.BatchSize)
}

func TestService_SampleNoConcatenate(t *testing.T) {
	svc, _ := newTestService(t, 4)
	ctx := context.Background()

	_, err := svc.Append(ctx, wireTransition(1))
	require.NoError(t, err)

	off := false
	resp, err := svc.Sample(ctx, SampleRequest{
		BatchSize:   1,
		Method:      replay.MethodAll,
		Concatenate: &off,
		Attrs:       []string{"reward"},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Values[0].Dense)
	assert.Equal(t, []any{1.0}, resp.Values[0].List)
}

func TestService_SampleEmptyRandom(t *testing.T) {
	svc, _ := newTestService(t, 4)

	_, err := svc.Sample(context.Background(), SampleRequest{
		BatchSize: 2,
		Method:    replay.MethodRandom,
	})
	assert.ErrorIs(t, err, replay.ErrEmptySample)
}

func TestService_Clear(t *testing.T) {
	svc, publisher := newTestService(t, 4)
	ctx := context.Background()

	for _, r := range []float64{1, 2} {
		_, err := svc.Append(ctx, wireTransition(r))
		require.NoError(t, err)
	}

	resp := svc.Clear(ctx)
	assert.Equal(t, 2, resp.Cleared)
	assert.Equal(t, 0, svc.Size())

	last := publisher.events[len(publisher.events)-1]
	assert.Equal(t, events.TypeClear, last.Type)
}
