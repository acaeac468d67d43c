// Package flowtable implements the bounded Connection -> FlowEntry map
// described in spec.md §4.3: sweep-based inactivity eviction plus
// %max_flows-triggered random-index capacity eviction.
package flowtable

import (
	"math/rand"
	"time"

	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
)

// Config bundles the table's capacity and aging parameters, mirroring
// spec.md §6's enumerated options.
type Config struct {
	Cutoff          uint64
	MaxFlows        int
	MaxAge          uint64 // seconds
	ExpireInterval  uint64 // seconds
}

// Table is the bounded flow table. It is not safe for concurrent use:
// spec.md §5 models the owning source as a single-threaded agent.
type Table struct {
	cfg        Config
	entries    map[vast.Connection]*vast.FlowEntry
	lastExpire uint64
	rng        *rand.Rand
	log        vlog.Logger

	// insertedNew and sizeBeforeInsert record the state of the most
	// recent GetOrInsert call, so MaybeCapEvict can evaluate the
	// %MaxFlows trigger against the size as it stood immediately
	// before that insert. spec.md §8's seed test table resolves the
	// otherwise-ambiguous eviction ordering by requiring the table to
	// stabilize at MaxFlows entries (not MaxFlows-1); checking the
	// pre-insert size achieves that, whereas checking the post-insert
	// size (a literal reading of §4.3's "after each insert" prose)
	// would stabilize one entry lower.
	insertedNew      bool
	sizeBeforeInsert int
}

// New builds an empty Table. The random source is seeded once per table
// instance from a non-reproducible entropy source, matching the
// original's std::random_device-per-actor lifetime (spec.md §4.3).
func New(cfg Config, log vlog.Logger) *Table {
	if log == nil {
		log = vlog.Noop()
	}
	return &Table{
		cfg:     cfg,
		entries: make(map[vast.Connection]*vast.FlowEntry),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}
}

// Cutoff returns the configured per-flow byte ceiling.
func (t *Table) Cutoff() uint64 { return t.cfg.Cutoff }

// Len reports the current number of tracked flows.
func (t *Table) Len() int { return len(t.entries) }

// GetOrInsert finds the entry for conn, inserting a fresh one
// (BytesSeen=0, LastSeen=ts) if absent, or refreshing LastSeen on an
// existing entry. It returns a copy of the entry as observed at this
// call; callers mutate flow state through AddBytes/SetBytes.
func (t *Table) GetOrInsert(conn vast.Connection, ts uint64) vast.FlowEntry {
	e, ok := t.entries[conn]
	if !ok {
		t.insertedNew = true
		t.sizeBeforeInsert = len(t.entries)
		e = &vast.FlowEntry{BytesSeen: 0, LastSeen: int64(ts)}
		t.entries[conn] = e
		return *e
	}
	t.insertedNew = false
	e.LastSeen = int64(ts)
	return *e
}

// AddBytes increments the flow's byte count by n.
func (t *Table) AddBytes(conn vast.Connection, n uint64) {
	if e, ok := t.entries[conn]; ok {
		e.BytesSeen += n
	}
}

// SetBytes pins the flow's byte count to n (used when a packet is
// truncated exactly to the cutoff).
func (t *Table) SetBytes(conn vast.Connection, n uint64) {
	if e, ok := t.entries[conn]; ok {
		e.BytesSeen = n
	}
}

// MaybeExpire sweeps inactive entries. On the very first call it only
// initializes the expiry clock (lastExpire == 0 means "uninitialized");
// the sweep itself runs only once ts has advanced by more than
// ExpireInterval past the last sweep, per spec.md §4.3.
func (t *Table) MaybeExpire(ts uint64) {
	if t.lastExpire == 0 {
		t.lastExpire = ts
		return
	}
	if ts-t.lastExpire <= t.cfg.ExpireInterval {
		return
	}
	t.lastExpire = ts
	for conn, e := range t.entries {
		if ts-uint64(e.LastSeen) > t.cfg.MaxAge {
			delete(t.entries, conn)
		}
	}
}

// MaybeCapEvict evicts exactly one entry, chosen uniformly at random,
// when the most recent GetOrInsert inserted a new entry and the table's
// size just before that insert (sizeBeforeInsert) was a nonzero multiple
// of MaxFlows; it does nothing after a GetOrInsert that found an existing
// entry. spec.md §9 prefers a plain rand_index(0, |table|) draw over
// simulating the original's bucket-then-slot probe, which this
// implementation follows directly: Go's map iteration order is already
// randomized per run, so counting down from a random offset over one
// range loop yields a uniform pick without a second data structure.
func (t *Table) MaybeCapEvict() {
	if !t.insertedNew {
		return
	}
	t.insertedNew = false
	n := t.sizeBeforeInsert
	if n == 0 || t.cfg.MaxFlows <= 0 || n%t.cfg.MaxFlows != 0 {
		return
	}
	victim := t.rng.Intn(len(t.entries))
	i := 0
	for conn := range t.entries {
		if i == victim {
			delete(t.entries, conn)
			return
		}
		i++
	}
}
