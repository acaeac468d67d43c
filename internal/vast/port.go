package vast

// Proto identifies the transport protocol a Port was derived from.
type Proto uint8

const (
	ProtoUnknown Proto = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
)

func (p Proto) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// Port pairs a 16-bit number with the protocol it was taken from. For
// ICMP, Number carries the message type on the source side and the
// message code on the destination side, by convention of this system
// (spec.md §3, §9 — ICMPType/ICMPCode below expose named accessors).
type Port struct {
	Number uint16
	Proto  Proto
}

// ICMPType interprets the port's Number as an ICMP message type. Callers
// must only call this on a source-side ICMP port.
func (p Port) ICMPType() uint8 { return uint8(p.Number) }

// ICMPCode interprets the port's Number as an ICMP message code. Callers
// must only call this on a destination-side ICMP port.
func (p Port) ICMPCode() uint8 { return uint8(p.Number) }
