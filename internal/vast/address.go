// Package vast holds the core data types shared by the ingestion
// pipeline: addresses, ports, connections, flow entries, and the
// packet/chunk/segment hierarchy the segmentizer produces.
package vast

import (
	"fmt"
	"net"
)

// Family discriminates the two address kinds the dissector understands.
type Family uint8

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Address is a tagged value holding either 4 or 16 raw bytes in network
// byte order, plus a family discriminator. Comparison is byte-wise.
type Address struct {
	family Family
	bytes  [16]byte
}

// NewIPv4Address builds an IPv4 address from a 4-byte network-order slice.
func NewIPv4Address(b []byte) Address {
	var a Address
	a.family = FamilyIPv4
	copy(a.bytes[:4], b)
	return a
}

// NewIPv6Address builds an IPv6 address from a 16-byte network-order slice.
func NewIPv6Address(b []byte) Address {
	var a Address
	a.family = FamilyIPv6
	copy(a.bytes[:16], b)
	return a
}

// Family reports whether the address is IPv4 or IPv6.
func (a Address) Family() Family { return a.family }

// Bytes returns the address's raw bytes (4 for IPv4, 16 for IPv6).
func (a Address) Bytes() []byte {
	if a.family == FamilyIPv4 {
		return a.bytes[:4]
	}
	return a.bytes[:16]
}

// Equal reports bit-exact equality on family and raw bytes.
func (a Address) Equal(b Address) bool {
	return a.family == b.family && a.bytes == b.bytes
}

// String renders the address using net.IP's dotted/colon forms.
func (a Address) String() string {
	return net.IP(a.Bytes()).String()
}

// GobEncode implements gob.GobEncoder. Address's fields are unexported,
// so encoding/gob's default struct encoding would silently drop them;
// this encodes the family tag followed by the raw address bytes instead.
func (a Address) GobEncode() ([]byte, error) {
	b := make([]byte, 1+len(a.Bytes()))
	b[0] = byte(a.family)
	copy(b[1:], a.Bytes())
	return b, nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (a *Address) GobDecode(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("vast: short gob encoding for Address")
	}
	a.family = Family(b[0])
	a.bytes = [16]byte{}
	copy(a.bytes[:], b[1:])
	return nil
}
