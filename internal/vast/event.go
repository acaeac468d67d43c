package vast

// Meta is the connection-shaped header carried by every PacketEvent.
type Meta struct {
	Src, Dst Address
	SPort    Port
	DPort    Port
}

// PacketEvent is the structured record the dissector emits for every
// packet it does not drop. Payload begins at the network layer (the link
// layer is stripped) and is truncated so the owning flow never exceeds
// its cutoff.
type PacketEvent struct {
	Meta      Meta
	Payload   []byte
	Timestamp int64 // nanoseconds since epoch
}

// ByteSize approximates the event's footprint for segment-size
// accounting: the payload plus a fixed header allowance for Meta and
// Timestamp.
func (e PacketEvent) ByteSize() int {
	const headerSize = 4 + 4 + 2 + 2 + 2 + 2 + 8 // src/dst/ports/timestamp
	return headerSize + len(e.Payload)
}
