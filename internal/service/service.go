// Package service wraps the replay buffer with the exclusion, metrics
// and eventing the HTTP layer relies on. The buffer itself is
// single-owner; every buffer touch here happens under one mutex, which
// also gives sampling a consistent snapshot against concurrent appends.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/experience/internal/events"
	"github.com/cartridge/experience/internal/metrics"
	"github.com/cartridge/experience/replay"
)

// Service owns the buffer and serializes access to it.
type Service struct {
	mu           sync.Mutex
	buf          *replay.Buffer
	defaultBatch int

	logger    zerolog.Logger
	collector *metrics.Collector
	publisher events.Publisher

	appends    uint64
	overwrites uint64
	samples    uint64
}

// New constructs a Service around an existing buffer.
func New(buf *replay.Buffer, defaultBatch int, logger zerolog.Logger, collector *metrics.Collector, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		buf:          buf,
		defaultBatch: defaultBatch,
		logger:       logger,
		collector:    collector,
		publisher:    publisher,
	}
}

// Append validates and admits one transition, returning its slot.
func (s *Service) Append(ctx context.Context, req TransitionJSON) (AppendResponse, error) {
	tr, err := req.toTransition()
	if err != nil {
		return AppendResponse{}, fmt.Errorf("decode transition: %w", err)
	}

	start := time.Now()
	s.mu.Lock()
	wasFull := s.buf.Size() == s.buf.Capacity()
	pos, err := s.buf.Append(tr, nil)
	size := s.buf.Size()
	capacity := s.buf.Capacity()
	if err == nil {
		s.appends++
		if wasFull {
			s.overwrites++
		}
	}
	s.mu.Unlock()
	if err != nil {
		return AppendResponse{}, err
	}

	s.collector.TransitionAppended(pos, size, capacity, time.Since(start))
	s.publish(ctx, events.BufferEvent{
		Type:     events.TypeAppend,
		Size:     size,
		Capacity: capacity,
		Position: pos,
	})
	return AppendResponse{Position: pos, Size: size}, nil
}

// AppendBatch admits transitions in order, stopping at the first error.
func (s *Service) AppendBatch(ctx context.Context, reqs []TransitionJSON) (AppendBatchResponse, error) {
	transitions := make([]*replay.Transition, len(reqs))
	for i, req := range reqs {
		tr, err := req.toTransition()
		if err != nil {
			return AppendBatchResponse{}, fmt.Errorf("decode transition %d: %w", i, err)
		}
		transitions[i] = tr
	}

	start := time.Now()
	s.mu.Lock()
	free := s.buf.Capacity() - s.buf.Size()
	positions, err := s.buf.AppendBatch(transitions, nil)
	size := s.buf.Size()
	capacity := s.buf.Capacity()
	s.appends += uint64(len(positions))
	if len(positions) > free {
		s.overwrites += uint64(len(positions) - free)
	}
	s.mu.Unlock()

	for _, pos := range positions {
		s.collector.TransitionAppended(pos, size, capacity, time.Since(start))
	}
	if len(positions) > 0 {
		s.publish(ctx, events.BufferEvent{
			Type:     events.TypeAppend,
			Size:     size,
			Capacity: capacity,
			Position: positions[len(positions)-1],
		})
	}
	if err != nil {
		return AppendBatchResponse{Positions: positions, Size: size}, err
	}
	return AppendBatchResponse{Positions: positions, Size: size}, nil
}

// Sample draws a batch and resolves it into wire values.
func (s *Service) Sample(ctx context.Context, req SampleRequest) (SampleResponse, error) {
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = s.defaultBatch
	}
	concatenate := true
	if req.Concatenate != nil {
		concatenate = *req.Concatenate
	}
	cfg := replay.SampleConfig{
		BatchSize:    batchSize,
		Method:       req.Method,
		Concatenate:  concatenate,
		Attrs:        req.Attrs,
		ConcatCustom: req.ConcatCustom,
	}

	start := time.Now()
	s.mu.Lock()
	size, values, err := s.buf.SampleBatch(cfg)
	if err == nil {
		s.samples++
	}
	s.mu.Unlock()
	if err != nil {
		return SampleResponse{}, err
	}

	method := req.Method
	if method == "" {
		method = replay.MethodRandomUnique
	}
	s.collector.BatchSampled(method, batchSize, size, time.Since(start))
	s.publish(ctx, events.BufferEvent{
		Type:      events.TypeSample,
		Size:      s.Size(),
		Capacity:  s.buf.Capacity(),
		BatchSize: size,
		Method:    method,
	})

	out := SampleResponse{
		BatchSize: size,
		Values:    make([]BatchValueJSON, len(values)),
	}
	for i, v := range values {
		out.Values[i] = batchValueJSON(v)
	}
	return out, nil
}

// Stats reports buffer occupancy and operation counters.
func (s *Service) Stats(ctx context.Context) StatsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsResponse{
		Size:            s.buf.Size(),
		Capacity:        s.buf.Capacity(),
		Arena:           s.buf.Arena().Name(),
		ArenaBytes:      s.buf.Arena().AllocatedBytes(),
		TotalAppends:    s.appends,
		TotalOverwrites: s.overwrites,
		TotalSamples:    s.samples,
	}
}

// Clear empties the buffer and resets its write cursor.
func (s *Service) Clear(ctx context.Context) ClearResponse {
	s.mu.Lock()
	cleared := s.buf.Size()
	s.buf.Clear()
	capacity := s.buf.Capacity()
	s.mu.Unlock()

	s.collector.BufferCleared(cleared)
	s.publish(ctx, events.BufferEvent{
		Type:     events.TypeClear,
		Size:     0,
		Capacity: capacity,
	})
	return ClearResponse{Cleared: cleared}
}

// Size returns the current occupancy.
func (s *Service) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Size()
}

func (s *Service) publish(ctx context.Context, event events.BufferEvent) {
	event.Timestamp = time.Now()
	if err := s.publisher.PublishBufferEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("Failed to publish buffer event")
	}
}
