package pcap

import (
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"

	"github.com/awesome-security/vast/internal/vlog"
)

// writeTestTrace synthesizes a tiny offline trace with n TCP packets,
// following scripts/pcapgen's layers-based serialization approach.
func writeTestTrace(t *testing.T, n int) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "vast-*.pcap")
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for i := 0; i < n; i++ {
		eth := &layers.Ethernet{
			SrcMAC:       []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       []byte{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			SrcIP:    []byte{10, 0, 0, 1},
			DstIP:    []byte{10, 0, 0, 2},
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
		}
		tcp := &layers.TCP{SrcPort: 1234, DstPort: 80, SYN: true, Window: 1024}
		tcp.SetNetworkLayerForChecksum(ip)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload([]byte("hello"))))

		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(int64(1700000000+i), 0),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		require.NoError(t, w.WritePacket(ci, buf.Bytes()))
	}
	return f.Name()
}

func TestReader_OffineTraceYieldsFramesThenEndOfStream(t *testing.T) {
	path := writeTestTrace(t, 3)

	r := NewReader(vlog.Noop())
	pacingDisabled, err := r.Open(path, 0)
	require.NoError(t, err)
	require.False(t, pacingDisabled)
	defer r.Close()

	count := 0
	for {
		_, status, err := r.Next()
		require.NoError(t, err)
		if status == StatusEndOfStream {
			break
		}
		require.Equal(t, StatusOK, status)
		count++
	}
	require.Equal(t, 3, count)

	// Terminal state is idempotent.
	_, status, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEndOfStream, status)
}

func TestReader_NoSuchFile(t *testing.T) {
	r := NewReader(vlog.Noop())
	_, err := r.Open("/nonexistent/path/to/trace.pcap", 0)
	require.Error(t, err)
}
