package segmentizer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
)

type fakeConsumer struct {
	mu         sync.Mutex
	segments   []vast.Segment
	statistics []float64
	failNext   bool
}

func (f *fakeConsumer) Segment(ctx context.Context, seg vast.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("simulated consumer failure")
	}
	f.segments = append(f.segments, seg)
	return nil
}

func (f *fakeConsumer) Statistics(ctx context.Context, eventsPerSecond float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statistics = append(f.statistics, eventsPerSecond)
	return nil
}

func event(tsNanos int64, payloadLen int) vast.PacketEvent {
	return vast.PacketEvent{
		Meta:      vast.Meta{},
		Payload:   make([]byte, payloadLen),
		Timestamp: tsNanos,
	}
}

func TestSegmentizer_SealsChunkAtMaxEventsPerChunk(t *testing.T) {
	c := &fakeConsumer{}
	s := New(3, 1<<20, c, vlog.Noop())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Process(context.Background(), event(int64(i)+1, 10)))
	}

	require.Equal(t, 1, len(s.segment.Chunks))
	require.Equal(t, 3, s.segment.Chunks[0].Len())
	require.Equal(t, 0, s.chunk.Len())
}

func TestSegmentizer_ShipsSegmentWhenByteBudgetExceeded(t *testing.T) {
	c := &fakeConsumer{}
	// one event per chunk (each ~34 bytes of header-plus-payload); a
	// 60-byte budget forces a ship on the second chunk.
	s := New(1, 60, c, vlog.Noop())

	require.NoError(t, s.Process(context.Background(), event(1, 10)))
	require.Empty(t, c.segments, "first chunk fits, nothing shipped yet")

	require.NoError(t, s.Process(context.Background(), event(2, 10)))
	require.Len(t, c.segments, 1, "second chunk overflows the budget, first segment ships")
	require.Equal(t, 1, c.segments[0].Chunks[0].Len())
	require.Equal(t, 1, len(s.segment.Chunks), "sealed chunk attaches to the freshly started segment")
}

func TestSegmentizer_FlushShipsPartialSegmentAtTeardown(t *testing.T) {
	c := &fakeConsumer{}
	s := New(10, 1<<20, c, vlog.Noop())

	require.NoError(t, s.Process(context.Background(), event(1, 10)))
	require.NoError(t, s.Process(context.Background(), event(2, 10)))
	require.Empty(t, c.segments)

	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, c.segments, 1)
	require.Equal(t, 2, c.segments[0].EventCount())
}

func TestSegmentizer_FlushOnEmptySegmentizerStillShipsAnEmptySegment(t *testing.T) {
	c := &fakeConsumer{}
	s := New(10, 1<<20, c, vlog.Noop())

	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, c.segments, 1)
	require.Equal(t, 0, c.segments[0].EventCount())
}

func TestSegmentizer_FlushPropagatesAFailureFromTheFinalShip(t *testing.T) {
	c := &fakeConsumer{failNext: true}
	s := New(10, 1<<20, c, vlog.Noop())

	require.NoError(t, s.Process(context.Background(), event(1, 10)))

	err := s.Flush(context.Background())
	require.Error(t, err)
}

func TestSegmentizer_FlushSwallowsAnIntermediateSealFailureViaRetry(t *testing.T) {
	c := &fakeConsumer{}
	s := New(10, 30, c, vlog.Noop())
	// pre-load the open segment with one chunk so the trailing partial
	// chunk's seal at Flush overflows the byte budget and triggers a ship.
	s.segment.Append(vast.Chunk{Events: []vast.PacketEvent{event(1, 10)}, MinSeq: 1, MaxSeq: 1})
	require.NoError(t, s.Process(context.Background(), event(2, 10)))

	c.failNext = true
	require.NoError(t, s.Flush(context.Background()), "the failed intermediate ship is logged, not propagated")
	require.Len(t, c.segments, 1, "the retry's final unconditional ship still reaches the consumer")
}

func TestSegmentizer_SingleFrameTraceYieldsExactlyOneShortSegmentAtTeardown(t *testing.T) {
	c := &fakeConsumer{}
	s := New(500, 1<<20, c, vlog.Noop())

	require.NoError(t, s.Process(context.Background(), event(1, 64)))
	require.NoError(t, s.Flush(context.Background()))

	require.Len(t, c.segments, 1)
	require.Equal(t, 1, c.segments[0].EventCount())
}

func TestSegmentizer_StatisticsEmittedOnWindowClose(t *testing.T) {
	c := &fakeConsumer{}
	s := New(1000, 1<<20, c, vlog.Noop())

	base := int64(1_700_000_000_000_000_000)
	require.NoError(t, s.Process(context.Background(), event(base, 10)))
	require.NoError(t, s.Process(context.Background(), event(base+2_000_000_000, 10)))

	require.NotEmpty(t, c.statistics)
	require.Greater(t, c.statistics[0], 0.0)
}
