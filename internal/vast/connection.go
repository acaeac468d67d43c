package vast

// Connection is the directional 4-tuple identifying a flow. Capture order
// of the first packet fixes orig/resp: two reverse-direction packets
// produce distinct connections. Equality is bit-exact on all four fields.
type Connection struct {
	Src, Dst Address
	SrcPort  Port
	DstPort  Port
}

// Equal reports whether two connections share all four fields exactly.
// Connection is composed entirely of comparable value types, so it can
// also be used directly as a map key (internal/flowtable relies on this).
func (c Connection) Equal(o Connection) bool {
	return c.Src.Equal(o.Src) && c.Dst.Equal(o.Dst) &&
		c.SrcPort == o.SrcPort && c.DstPort == o.DstPort
}
