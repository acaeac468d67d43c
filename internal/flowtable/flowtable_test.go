package flowtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
)

func conn(n byte) vast.Connection {
	return vast.Connection{
		Src:     vast.NewIPv4Address([]byte{10, 0, 0, n}),
		Dst:     vast.NewIPv4Address([]byte{10, 0, 1, n}),
		SrcPort: vast.Port{Number: 1000, Proto: vast.ProtoTCP},
		DstPort: vast.Port{Number: 80, Proto: vast.ProtoTCP},
	}
}

func TestTable_RefreshDoesNotExpireRecentlySeenFlow(t *testing.T) {
	tbl := New(Config{Cutoff: 1000, MaxFlows: 100, MaxAge: 5, ExpireInterval: 5}, vlog.Noop())

	c := conn(1)
	tbl.GetOrInsert(c, 10)
	tbl.MaybeExpire(10)
	require.Equal(t, 1, tbl.Len())

	tbl.GetOrInsert(c, 20)
	tbl.MaybeExpire(20)
	require.Equal(t, 1, tbl.Len(), "entry refreshed at ts=20 must survive a sweep at ts=20")
}

func TestTable_CapacityEvictionTriggersAtMultipleOfMaxFlows(t *testing.T) {
	tbl := New(Config{Cutoff: 1000, MaxFlows: 4, MaxAge: 1000, ExpireInterval: 1000}, vlog.Noop())

	for i := byte(1); i <= 4; i++ {
		tbl.GetOrInsert(conn(i), 1)
		tbl.MaybeCapEvict()
	}
	// The pre-insert size (3) wasn't yet a multiple of MaxFlows, so no
	// eviction fired on the 4th insert; the table sits at capacity.
	require.Equal(t, 4, tbl.Len())

	// The 5th insert sees a pre-insert size of 4 (a multiple of
	// MaxFlows), triggering exactly one eviction and stabilizing the
	// table back at MaxFlows entries, per spec.md §8's seed test 3.
	tbl.GetOrInsert(conn(5), 1)
	tbl.MaybeCapEvict()
	require.Equal(t, 4, tbl.Len())
}

func TestTable_BytesSeenNeverExceedsCutoff(t *testing.T) {
	tbl := New(Config{Cutoff: 1000, MaxFlows: 100, MaxAge: 1000, ExpireInterval: 1000}, vlog.Noop())
	c := conn(1)
	tbl.GetOrInsert(c, 1)
	tbl.AddBytes(c, 400)
	tbl.AddBytes(c, 400)
	tbl.SetBytes(c, 1000) // simulate the dissector's truncate-to-cutoff path
	e := tbl.GetOrInsert(c, 2)
	require.LessOrEqual(t, e.BytesSeen, tbl.Cutoff())
}

func TestTable_MaybeExpireRemovesOnlyStaleEntries(t *testing.T) {
	tbl := New(Config{Cutoff: 1000, MaxFlows: 100, MaxAge: 5, ExpireInterval: 1}, vlog.Noop())
	stale := conn(1)
	fresh := conn(2)
	tbl.GetOrInsert(stale, 1)
	tbl.MaybeExpire(1) // initializes lastExpire (0 is the "uninitialized" marker)
	tbl.GetOrInsert(fresh, 10)

	tbl.MaybeExpire(10) // 10-1 > expireInterval(1): sweep runs
	require.Equal(t, 1, tbl.Len())
	_, stillPresent := tbl.entries[fresh]
	require.True(t, stillPresent)
}
