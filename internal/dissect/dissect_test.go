package dissect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awesome-security/vast/internal/flowtable"
	vast "github.com/awesome-security/vast/internal/vast"
	"github.com/awesome-security/vast/internal/vlog"
)

const (
	ethHeader = 14
	ip4Header = 20
	tcpHeader = 20
	udpHeader = 8
)

func ethernetFrame(etherType uint16, layer3 []byte) []byte {
	frame := make([]byte, ethHeader+len(layer3))
	frame[12] = byte(etherType >> 8)
	frame[13] = byte(etherType)
	copy(frame[ethHeader:], layer3)
	return frame
}

func ipv4Layer(ihl byte, proto byte, layer4 []byte) []byte {
	l := make([]byte, ip4Header+len(layer4))
	l[0] = 0x40 | ihl
	l[9] = proto
	copy(l[12:16], []byte{10, 0, 0, 1})
	copy(l[16:20], []byte{10, 0, 0, 2})
	copy(l[ip4Header:], layer4)
	return l
}

func tcpLayer(srcPort, dstPort uint16, payload []byte) []byte {
	l := make([]byte, tcpHeader+len(payload))
	l[0], l[1] = byte(srcPort>>8), byte(srcPort)
	l[2], l[3] = byte(dstPort>>8), byte(dstPort)
	l[12] = 5 << 4 // data offset = 5 words = 20 bytes, no options
	copy(l[tcpHeader:], payload)
	return l
}

func udpLayer(srcPort, dstPort uint16, payload []byte) []byte {
	l := make([]byte, udpHeader+len(payload))
	l[0], l[1] = byte(srcPort>>8), byte(srcPort)
	l[2], l[3] = byte(dstPort>>8), byte(dstPort)
	copy(l[udpHeader:], payload)
	return l
}

func newDissector(cutoff uint64) *Dissector {
	tbl := flowtable.New(flowtable.Config{
		Cutoff:         cutoff,
		MaxFlows:       1 << 20,
		MaxAge:         3600,
		ExpireInterval: 3600,
	}, vlog.Noop())
	return New(tbl, vlog.Noop())
}

func TestDissect_ThreePacketTCPFlowTruncatesExactlyAtCutoff(t *testing.T) {
	d := newDissector(1000)

	var got []int
	for i := 0; i < 3; i++ {
		payload := make([]byte, 400)
		frame := ethernetFrame(etherTypeIPv4, ipv4Layer(5, protoTCP, tcpLayer(1111, 80, payload)))
		out := d.Dissect(frame, len(frame), 0, 0)
		require.Nil(t, out.Err)
		require.False(t, out.Skipped)
		require.False(t, out.Dropped)
		require.NotNil(t, out.Event)
		got = append(got, len(out.Event.Payload)-ip4Header-tcpHeader)
	}

	require.Equal(t, []int{400, 400, 200}, got, "the third packet's TCP payload is truncated to what fits under the cutoff")
}

func TestDissect_ARPEtherTypeIsSkippedWithoutEventOrError(t *testing.T) {
	d := newDissector(1_000_000)
	frame := ethernetFrame(0x0806, make([]byte, 28))

	out := d.Dissect(frame, len(frame), 0, 0)

	require.True(t, out.Skipped)
	require.Nil(t, out.Event)
	require.Nil(t, out.Err)
}

func TestDissect_TruncatedIPv4FrameYieldsHeaderTooShort(t *testing.T) {
	d := newDissector(1_000_000)
	layer3 := ipv4Layer(5, protoTCP, make([]byte, 4)) // well under 34 bytes
	frame := ethernetFrame(etherTypeIPv4, layer3[:10])

	out := d.Dissect(frame, len(frame), 0, 0)

	require.Nil(t, out.Event)
	require.Error(t, out.Err)
	var tooShort *HeaderTooShortError
	require.ErrorAs(t, out.Err, &tooShort)
	require.Equal(t, vast.FamilyIPv4, tooShort.Family)
}

func TestDissect_BogusIHLYieldsHeaderTooShort(t *testing.T) {
	d := newDissector(1_000_000)
	payload := make([]byte, 40)
	frame := ethernetFrame(etherTypeIPv4, ipv4Layer(4, protoTCP, tcpLayer(1, 2, payload))) // ihl=4 -> 16 bytes, < 20

	out := d.Dissect(frame, len(frame), 0, 0)

	require.Nil(t, out.Event)
	require.Error(t, out.Err)
	var tooShort *HeaderTooShortError
	require.ErrorAs(t, out.Err, &tooShort)
}

func TestDissect_UDPSameFiveTupleRefreshesRatherThanExpires(t *testing.T) {
	tbl := flowtable.New(flowtable.Config{
		Cutoff:         1_000_000,
		MaxFlows:       1 << 20,
		MaxAge:         5,
		ExpireInterval: 5,
	}, vlog.Noop())
	d := New(tbl, vlog.Noop())
	frame := ethernetFrame(etherTypeIPv4, ipv4Layer(5, protoUDP, udpLayer(53, 5353, make([]byte, 20))))

	out1 := d.Dissect(frame, len(frame), 1000, 0)
	require.NotNil(t, out1.Event)

	// 1010-1000 > ExpireInterval(5), so this packet triggers a sweep; the
	// entry was just refreshed to ts=1010 and must survive it.
	out2 := d.Dissect(frame, len(frame), 1010, 0)
	require.NotNil(t, out2.Event)

	require.Equal(t, out1.Event.Meta, out2.Event.Meta, "identical 5-tuple maps to the same flow on both packets")
	require.Equal(t, 1, tbl.Len(), "the refreshed flow is not removed by the sweep")
}

func TestDissect_ICMPPortsCarryTypeAndCode(t *testing.T) {
	d := newDissector(1_000_000)
	icmp := []byte{8, 0, 0, 0, 0, 0, 0, 0} // type=8 (echo request), code=0
	frame := ethernetFrame(etherTypeIPv4, ipv4Layer(5, protoICMP, icmp))

	out := d.Dissect(frame, len(frame), 0, 0)

	require.NotNil(t, out.Event)
	require.Equal(t, uint8(8), out.Event.Meta.SPort.ICMPType())
	require.Equal(t, uint8(0), out.Event.Meta.DPort.ICMPCode())
}

func TestDissect_FlowAtCutoffDropsFurtherPackets(t *testing.T) {
	d := newDissector(10)
	payload := make([]byte, 40)
	frame := ethernetFrame(etherTypeIPv4, ipv4Layer(5, protoTCP, tcpLayer(1, 2, payload)))

	out1 := d.Dissect(frame, len(frame), 0, 0)
	require.NotNil(t, out1.Event)

	out2 := d.Dissect(frame, len(frame), 0, 0)
	require.True(t, out2.Dropped, "the flow is already pinned at cutoff, so the second packet is dropped outright")
	require.Nil(t, out2.Event)
}
