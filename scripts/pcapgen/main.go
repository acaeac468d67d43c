// Command pcapgen synthesizes a PCAP trace for exercising vast-capture:
// a mix of TCP, UDP, and ICMP traffic across a configurable number of
// distinct flows, so a generated trace can exercise the flow table's
// capacity eviction and a flow's cutoff truncation deterministically
// rather than relying on a handful of purely random 5-tuples.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	outputFile := flag.String("o", "trace.pcap", "output pcap file path")
	packetCount := flag.Int("c", 1000, "number of packets to generate")
	flowCount := flag.Int("flows", 16, "number of distinct 5-tuples to cycle packets across")
	payloadMin := flag.Int("payload-min", 50, "minimum payload size in bytes")
	payloadMax := flag.Int("payload-max", 1450, "maximum payload size in bytes")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	flows := make([]fiveTuple, *flowCount)
	for i := range flows {
		flows[i] = randomFiveTuple(rng)
	}

	log.Printf("generating %d packets across %d flows into %s...", *packetCount, *flowCount, *outputFile)

	start := time.Now()
	for i := 0; i < *packetCount; i++ {
		flow := flows[i%len(flows)]
		payloadSize := rng.Intn(*payloadMax-*payloadMin+1) + *payloadMin
		frame, err := buildFrame(rng, flow, payloadSize)
		if err != nil {
			log.Fatalf("failed to build packet %d: %v", i, err)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := pcapWriter.WritePacket(ci, frame); err != nil {
			log.Fatalf("failed to write packet %d: %v", i, err)
		}
	}

	log.Printf("wrote %d packets to %s", *packetCount, *outputFile)
}

type fiveTuple struct {
	srcIP, dstIP     net.IP
	srcPort, dstPort uint16
	proto            layers.IPProtocol
}

func randomFiveTuple(rng *rand.Rand) fiveTuple {
	proto := []layers.IPProtocol{layers.IPProtocolTCP, layers.IPProtocolUDP, layers.IPProtocolICMPv4}[rng.Intn(3)]
	return fiveTuple{
		srcIP:   net.IPv4(10, 0, byte(rng.Intn(256)), byte(rng.Intn(256))),
		dstIP:   net.IPv4(10, 1, byte(rng.Intn(256)), byte(rng.Intn(256))),
		srcPort: uint16(rng.Intn(65535-1024) + 1024),
		dstPort: uint16(rng.Intn(65535-1024) + 1024),
		proto:   proto,
	}
}

func buildFrame(rng *rand.Rand, flow fiveTuple, payloadSize int) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP:    flow.srcIP,
		DstIP:    flow.dstIP,
		Version:  4,
		TTL:      64,
		Protocol: flow.proto,
	}

	payload := make([]byte, payloadSize)
	rng.Read(payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}

	switch flow.proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(flow.srcPort),
			DstPort: layers.TCPPort(flow.dstPort),
			Seq:     rng.Uint32(),
			Ack:     rng.Uint32(),
			SYN:     true,
			Window:  14600,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)); err != nil {
			return nil, err
		}
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(flow.srcPort),
			DstPort: layers.UDPPort(flow.dstPort),
		}
		udp.SetNetworkLayerForChecksum(ip)
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			return nil, err
		}
	default:
		icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, icmp, gopacket.Payload(payload)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
