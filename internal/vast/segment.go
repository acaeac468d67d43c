package vast

import "github.com/google/uuid"

// Segment is an ordered collection of Chunks identified by a universally
// unique 128-bit id. A segment is closed (and thus immutable) the instant
// it is handed off to a consumer; everything in this package treats a
// Segment value as mutable only up to that point.
type Segment struct {
	ID     uuid.UUID
	Chunks []Chunk
}

// NewSegment allocates an empty segment with a freshly generated id.
func NewSegment() Segment {
	return Segment{ID: uuid.New()}
}

// ByteSize sums the byte footprint of every chunk currently attached.
func (s *Segment) ByteSize() int {
	n := 0
	for i := range s.Chunks {
		n += s.Chunks[i].ByteSize()
	}
	return n
}

// EventCount sums the number of events across every chunk.
func (s *Segment) EventCount() int {
	n := 0
	for i := range s.Chunks {
		n += s.Chunks[i].Len()
	}
	return n
}

// Append attaches a sealed chunk to the segment.
func (s *Segment) Append(c Chunk) {
	s.Chunks = append(s.Chunks, c)
}
