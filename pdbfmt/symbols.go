package pdbfmt

import "encoding/binary"

// CodeView symbol record kinds relevant to procedure and inline-site
// resolution. The full symbol record set is much larger; everything else
// is skipped by length.
const (
	SymEnd           = 0x0006
	SymGProc32       = 0x1110
	SymLProc32       = 0x110f
	SymInlineSite    = 0x114d
	SymInlineSiteEnd = 0x114e
)

// ProcSym is a decoded S_GPROC32/S_LPROC32 record: a procedure's extent
// and name.
type ProcSym struct {
	Parent    uint32
	End       uint32
	Next      uint32
	CodeSize  uint32
	Offset    uint32
	Segment   uint16
	Name      string
	RecOffset uint32 // byte offset of this record within the symbol stream
}

// InlineSiteSym is a decoded S_INLINESITE record: which inlinee (function
// ID index, resolved against the module's inlinee-lines table) was
// inlined at this point, and the annotation bytes controlling how its
// ranges extend the enclosing line table. Range decoding itself lives in
// lines.go.
type InlineSiteSym struct {
	Parent      uint32
	End         uint32
	Inlinee     uint32
	Annotations []byte
	RecOffset   uint32
}

// WalkSymbols iterates the (length-prefixed, kind-tagged) records in a
// module's symbol stream, starting after the 4-byte stream signature.
// visit returns false to stop iteration early.
func WalkSymbols(data []byte, visit func(kind uint16, recOffset uint32, body []byte) bool) {
	if len(data) < 4 {
		return
	}
	off := 4
	for off+4 <= len(data) {
		recLen := int(binary.LittleEndian.Uint16(data[off:]))
		if recLen < 2 || off+2+recLen > len(data) {
			return
		}
		kind := binary.LittleEndian.Uint16(data[off+2:])
		body := data[off+4 : off+2+recLen]
		if !visit(kind, uint32(off), body) {
			return
		}
		off += 2 + recLen
	}
}

// ParseProcSym decodes an S_GPROC32/S_LPROC32 body.
func ParseProcSym(body []byte, strings *StringTable) ProcSym {
	p := ProcSym{
		Parent:   binary.LittleEndian.Uint32(body[0:4]),
		End:      binary.LittleEndian.Uint32(body[4:8]),
		Next:     binary.LittleEndian.Uint32(body[8:12]),
		CodeSize: binary.LittleEndian.Uint32(body[12:16]),
	}
	// DbgStart(4) DbgEnd(4) Typind(4) Offset(4) Segment(2) Flags(1) then name.
	p.Offset = binary.LittleEndian.Uint32(body[28:32])
	p.Segment = binary.LittleEndian.Uint16(body[32:34])
	nameOff := 35
	if nameOff < len(body) {
		p.Name = cstr(body[nameOff:])
	}
	return p
}

// ParseInlineSiteSym decodes an S_INLINESITE body.
func ParseInlineSiteSym(body []byte) InlineSiteSym {
	s := InlineSiteSym{
		Parent:  binary.LittleEndian.Uint32(body[0:4]),
		End:     binary.LittleEndian.Uint32(body[4:8]),
		Inlinee: binary.LittleEndian.Uint32(body[8:12]),
	}
	if len(body) > 12 {
		s.Annotations = body[12:]
	}
	return s
}
