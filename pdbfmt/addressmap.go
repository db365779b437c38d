package pdbfmt

// AddressMap translates between (segment, offset) pairs, as CodeView
// symbol and line records carry them, and the flat relative virtual
// addresses (RVAs) a symbolication query is expressed in. It is built from
// the DBI section-header substream's segment base addresses.
type AddressMap struct {
	segmentBases []uint32 // index 0 unused; CodeView segments are 1-based
}

// NewAddressMap builds a map from a list of segment virtual-address bases,
// ordered by (1-based) segment index.
func NewAddressMap(segmentBases []uint32) *AddressMap {
	return &AddressMap{segmentBases: append([]uint32{0}, segmentBases...)}
}

// RVA converts a (segment, offset) pair into a flat RVA.
func (m *AddressMap) RVA(segment uint16, offset uint32) uint32 {
	if int(segment) >= len(m.segmentBases) {
		return offset
	}
	return m.segmentBases[segment] + offset
}

// SegmentOffset converts a flat RVA back into the (segment, offset) pair
// whose segment's range contains it, given each segment's length in
// segmentLengths (parallel to the bases NewAddressMap was built from).
func (m *AddressMap) SegmentOffset(rva uint32, segmentLengths []uint32) (segment uint16, offset uint32) {
	for i := 1; i < len(m.segmentBases); i++ {
		base := m.segmentBases[i]
		length := uint32(0)
		if i-1 < len(segmentLengths) {
			length = segmentLengths[i-1]
		}
		if rva >= base && rva < base+length {
			return uint16(i), rva - base
		}
	}
	return 0, rva
}
