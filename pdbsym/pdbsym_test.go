package pdbsym

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/val35777/samply/pdbfmt"
	"github.com/val35777/samply/shared"
	"github.com/val35777/samply/typesig"
)

// symRecord packs one CodeView symbol record: a 2-byte length (covering
// kind+body), a 2-byte kind, and the body.
func symRecord(kind uint16, body []byte) []byte {
	rec := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint16(rec[0:2], uint16(2+len(body)))
	binary.LittleEndian.PutUint16(rec[2:4], kind)
	copy(rec[4:], body)
	return rec
}

// c13Subsection packs one C13 subsection: a 4-byte kind, a 4-byte size, the
// body, and padding up to the next 4-byte boundary.
func c13Subsection(kind uint32, body []byte) []byte {
	out := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint32(out[0:4], kind)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[8:], body)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

// buildProcSymBody encodes an S_GPROC32 body for a procedure starting at
// (segment, offset) with the given code size and name.
func buildProcSymBody(offset, codeSize uint32, segment uint16, name string) []byte {
	body := make([]byte, 35)
	binary.LittleEndian.PutUint32(body[12:16], codeSize)
	binary.LittleEndian.PutUint32(body[28:32], offset)
	binary.LittleEndian.PutUint16(body[32:34], segment)
	body = append(body, append([]byte(name), 0)...)
	return body
}

// buildInlineSiteSymBody encodes an S_INLINESITE body: inlinee id plus raw
// binary-annotation bytes.
func buildInlineSiteSymBody(inlinee uint32, annotations []byte) []byte {
	body := make([]byte, 12, 12+len(annotations))
	binary.LittleEndian.PutUint32(body[8:12], inlinee)
	return append(body, annotations...)
}

// TestFindFramesScenario4 drives a hand-built procedure with one inline
// site through the real symbol/C13 parsers and DecodeInlineAnnotations, per
// spec scenario 4: a procedure covering RVA 0x1000..0x1100 with one inline
// site covering 0x1040..0x1080 resolves a query at 0x1050 to
// [procedure, inlinee], outermost first.
func TestFindFramesScenario4(t *testing.T) {
	const inlineeID = 7
	const inlineeStartLine = 42
	const fileName = "foo.cpp"

	// Binary annotations: ChangeCodeOffset(3)=0x40 bumps the running
	// offset from the procedure start (0x1000) to 0x1040, then
	// ChangeCodeLength(4)=0x40 emits a range of that length there — the
	// inline site's only range, 0x1040..0x1080.
	annotations := []byte{
		3 /* ChangeCodeOffset */, 0x40,
		4 /* ChangeCodeLength */, 0x40,
	}

	procBody := buildProcSymBody(0x1000, 0x100, 1, "proc")
	siteBody := buildInlineSiteSymBody(inlineeID, annotations)

	symData := []byte{0, 0, 0, 0} // 4-byte stream signature
	symData = append(symData, symRecord(pdbfmt.SymGProc32, procBody)...)
	symData = append(symData, symRecord(pdbfmt.SymInlineSite, siteBody)...)

	// File-checksums subsection: one entry at byte offset 0, naming
	// fileName via the string table.
	checksumBody := make([]byte, 6) // nameOff(4)=0, checksumLen(1)=0, kind(1)=0
	c13 := c13Subsection(0xf4, checksumBody)

	// Inlinee-lines subsection (basic form): signature(4)=0, then one
	// 12-byte record (inlinee, fileChecksumOffset, startLine).
	inlineeBody := make([]byte, 16)
	binary.LittleEndian.PutUint32(inlineeBody[4:8], inlineeID)
	binary.LittleEndian.PutUint32(inlineeBody[8:12], 0)
	binary.LittleEndian.PutUint32(inlineeBody[12:16], inlineeStartLine)
	c13 = append(c13, c13Subsection(0xf6, inlineeBody)...)

	stream := append(append([]byte{}, symData...), c13...)

	strings := pdbfmt.NewStringTable(append([]byte(fileName), 0))
	dbi := &pdbfmt.DBI{Modules: []pdbfmt.Module{{
		SymStreamIndex: 1,
		SymByteSize:    uint32(len(symData)),
		C13LinesSize:   uint32(len(c13)),
	}}}
	msf := pdbfmt.NewMSFFromStreams([][]byte{nil, stream})
	pdb := pdbfmt.NewPDBFromParts(msf, dbi, strings)

	am := pdbfmt.NewAddressMap([]uint32{0})
	dumper := typesig.New()
	dumper.InlineeNames[inlineeID] = "inlinee"

	c := New(pdb, am, []uint32{0x10000}, dumper)

	frames := c.FindFrames(0x1050)

	want := []shared.Frame{
		{Function: "proc"},
		{Function: "inlinee", Location: &shared.Location{File: fileName, Line: inlineeStartLine}},
	}
	if !reflect.DeepEqual(frames, want) {
		t.Fatalf("FindFrames(0x1050) = %+v, want %+v", frames, want)
	}
}

// TestFindFramesScenario4OutsideInlineSite checks that an address inside
// the procedure but outside the inline site's range yields only the
// procedure frame.
func TestFindFramesScenario4OutsideInlineSite(t *testing.T) {
	annotations := []byte{3, 0x40, 4, 0x40}
	procBody := buildProcSymBody(0x1000, 0x100, 1, "proc")
	siteBody := buildInlineSiteSymBody(7, annotations)

	symData := []byte{0, 0, 0, 0}
	symData = append(symData, symRecord(pdbfmt.SymGProc32, procBody)...)
	symData = append(symData, symRecord(pdbfmt.SymInlineSite, siteBody)...)

	checksumBody := make([]byte, 6)
	c13 := c13Subsection(0xf4, checksumBody)
	inlineeBody := make([]byte, 16)
	binary.LittleEndian.PutUint32(inlineeBody[4:8], 7)
	binary.LittleEndian.PutUint32(inlineeBody[12:16], 42)
	c13 = append(c13, c13Subsection(0xf6, inlineeBody)...)

	stream := append(append([]byte{}, symData...), c13...)

	strings := pdbfmt.NewStringTable([]byte("foo.cpp\x00"))
	dbi := &pdbfmt.DBI{Modules: []pdbfmt.Module{{
		SymStreamIndex: 1,
		SymByteSize:    uint32(len(symData)),
		C13LinesSize:   uint32(len(c13)),
	}}}
	msf := pdbfmt.NewMSFFromStreams([][]byte{nil, stream})
	pdb := pdbfmt.NewPDBFromParts(msf, dbi, strings)
	am := pdbfmt.NewAddressMap([]uint32{0})

	c := New(pdb, am, []uint32{0x10000}, typesig.New())

	frames := c.FindFrames(0x1010)
	want := []shared.Frame{{Function: "proc"}}
	if !reflect.DeepEqual(frames, want) {
		t.Fatalf("FindFrames(0x1010) = %+v, want %+v", frames, want)
	}

	if got := c.FindFrames(0x2000); got != nil {
		t.Fatalf("FindFrames(0x2000) (outside procedure) = %+v, want nil", got)
	}
}

func TestAddressesCoveredByRangeIsContiguousAndExact(t *testing.T) {
	addrs := []uint32{10, 20, 30, 40, 50, 60}

	cases := []struct {
		start, end uint32
		want       []uint32
	}{
		{0, 100, addrs},
		{20, 50, []uint32{20, 30, 40}},
		{21, 50, []uint32{30, 40}},
		{61, 100, nil},
		{25, 26, nil},
		{30, 31, []uint32{30}},
	}

	for _, c := range cases {
		got := addressesCoveredByRange(addrs, c.start, c.end)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("addressesCoveredByRange(%v, %d, %d) = %v, want %v", addrs, c.start, c.end, got, c.want)
		}
	}
}
