package vast

// FlowEntry tracks the state a Flow Table keeps per Connection.
// Invariant: BytesSeen <= cutoff for whatever cutoff the table enforces.
type FlowEntry struct {
	BytesSeen uint64
	LastSeen  int64 // capture-time seconds
}
