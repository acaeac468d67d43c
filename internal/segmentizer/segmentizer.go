// Package segmentizer batches PacketEvents into fixed-event-count chunks
// and fixed-byte-budget segments for handoff to a downstream consumer,
// following original_source/src/vast/sink/segmentizer.cc's writer state
// machine and rolling-statistics reporting.
package segmentizer

import (
	"context"
	"fmt"

	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
)

// Consumer is the downstream collaborator spec.md §6 specifies only the
// message contract for: shipped segments and periodic statistics.
type Consumer interface {
	Segment(ctx context.Context, seg vast.Segment) error
	Statistics(ctx context.Context, eventsPerSecond float64) error
}

// Segmentizer is the Segmentizer agent: process(event) accumulates
// events into the current segment's open chunk; flush() seals and ships
// whatever is left at teardown.
type Segmentizer struct {
	maxEventsPerChunk int
	maxSegmentSize    int
	consumer          Consumer
	log               vlog.Logger

	segment vast.Segment
	chunk   vast.Chunk
	seq     uint64
	stats   *statistics
}

// New builds a Segmentizer shipping to consumer.
func New(maxEventsPerChunk, maxSegmentSize int, consumer Consumer, log vlog.Logger) *Segmentizer {
	if log == nil {
		log = vlog.Noop()
	}
	return &Segmentizer{
		maxEventsPerChunk: maxEventsPerChunk,
		maxSegmentSize:    maxSegmentSize,
		consumer:          consumer,
		log:               log,
		segment:           vast.NewSegment(),
		stats:             newStatistics(1_000_000_000),
	}
}

// Process absorbs one event, sealing and shipping chunks/segments as
// their bounds are reached, and updates the rolling throughput counter.
// It mirrors segmentizer.cc's process(): on every event it asks the
// writer to write(); when that ships a segment as a side effect, it logs
// and attaches to a freshly started one, exactly as the original's
// process() does with writer_.attach_to(&segment_).
func (s *Segmentizer) Process(ctx context.Context, e vast.PacketEvent) error {
	s.seq++
	s.chunk.Append(s.seq, e)

	if s.chunk.Len() >= s.maxEventsPerChunk {
		if err := s.sealChunk(ctx); err != nil {
			return err
		}
	}

	if s.stats.add(1, e.Timestamp) && s.stats.Last() > 0 {
		if err := s.consumer.Statistics(ctx, s.stats.Last()); err != nil {
			s.log.Warnf("failed to deliver statistics: %v", err)
		}
		s.log.Infof("ingests at rate %.2f events/sec (mean %.2f, median %.2f, stddev %.2f)",
			s.stats.Last(), s.stats.Mean(), s.stats.Median(), s.stats.StdDev())
	}

	return nil
}

// sealChunk seals the currently accumulating chunk and appends it to the
// open segment. If doing so would push the segment past maxSegmentSize,
// the current segment is shipped first and a new empty segment is
// started before the sealed chunk is attached — spec.md §4.5's write()
// contract, with the "construct a fresh segment id and attach" step
// folded into ship() below.
func (s *Segmentizer) sealChunk(ctx context.Context) error {
	sealed := s.chunk
	s.chunk = vast.Chunk{}

	if s.segment.ByteSize()+sealed.ByteSize() > s.maxSegmentSize && len(s.segment.Chunks) > 0 {
		if err := s.ship(ctx); err != nil {
			s.chunk = sealed
			return err
		}
	}

	s.segment.Append(sealed)
	return nil
}

// ship hands the current segment to the consumer and starts a fresh one.
func (s *Segmentizer) ship(ctx context.Context) error {
	s.log.Infof("sending segment %s with %d events to consumer", s.segment.ID, s.segment.EventCount())
	if err := s.consumer.Segment(ctx, s.segment); err != nil {
		return fmt.Errorf("failed to ship segment %s: %w", s.segment.ID, err)
	}
	s.segment = vast.NewSegment()
	return nil
}

// Flush seals any partial chunk and ships the final, possibly short,
// segment unconditionally. If sealing the partial chunk doesn't fit the
// current segment, a new segment is started and sealing is retried
// exactly once; if it still fails to fit, that is a corruption bug and
// is only logged, following segmentizer.cc's before_exit().
func (s *Segmentizer) Flush(ctx context.Context) error {
	if s.chunk.Len() > 0 {
		if err := s.sealChunk(ctx); err != nil {
			s.log.Errorf("first flush attempt failed: %v", err)
			s.segment = vast.NewSegment()
			if err := s.sealChunk(ctx); err != nil {
				s.log.Errorf("failed to flush a fresh segment: %v", err)
			}
		}
	}
	return s.ship(ctx)
}
