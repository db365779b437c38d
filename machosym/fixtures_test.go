package machosym

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/val35777/samply/macho"
	"github.com/val35777/samply/macho/types"
)

// buildMachOSlice returns a minimal valid little-endian 64-bit Mach-O
// object carrying a single LC_UUID load command with the given UUID.
func buildMachOSlice(uuid types.UUID) []byte {
	var uuidCmd bytes.Buffer
	binary.Write(&uuidCmd, binary.LittleEndian, uint32(types.LC_UUID))
	binary.Write(&uuidCmd, binary.LittleEndian, uint32(4+4+16))
	uuidCmd.Write(uuid[:])

	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, uint32(types.Magic64))
	binary.Write(&hdr, binary.LittleEndian, uint32(types.CPUAmd64))
	binary.Write(&hdr, binary.LittleEndian, uint32(0))
	binary.Write(&hdr, binary.LittleEndian, uint32(types.MH_EXECUTE))
	binary.Write(&hdr, binary.LittleEndian, uint32(1))              // ncmds
	binary.Write(&hdr, binary.LittleEndian, uint32(uuidCmd.Len()))  // sizeofcmds
	binary.Write(&hdr, binary.LittleEndian, uint32(0))              // flags
	binary.Write(&hdr, binary.LittleEndian, uint32(0))              // reserved

	out := append(hdr.Bytes(), uuidCmd.Bytes()...)
	return out
}

// fatFileWithUUIDs builds a two-slice fat Mach-O binary in memory, each
// slice a minimal object carrying one of the given UUIDs, and parses it
// with NewFatFile.
func fatFileWithUUIDs(t *testing.T, u1, u2 types.UUID) *macho.FatFile {
	t.Helper()

	s1 := buildMachOSlice(u1)
	s2 := buildMachOSlice(u2)

	const alignPad = 16
	pad := func(n int) int {
		if n%alignPad == 0 {
			return n
		}
		return n + (alignPad - n%alignPad)
	}

	headerSize := 8 + 2*20
	off1 := pad(headerSize)
	off2 := pad(off1 + len(s1))

	buf := make([]byte, off2+len(s2))
	binary.BigEndian.PutUint32(buf[0:4], uint32(types.MagicFat))
	binary.BigEndian.PutUint32(buf[4:8], 2)

	writeArch := func(i int, cpu types.CPU, off, size int) {
		base := 8 + i*20
		binary.BigEndian.PutUint32(buf[base:base+4], uint32(cpu))
		binary.BigEndian.PutUint32(buf[base+4:base+8], uint32(types.CPUSubtypeX8664All))
		binary.BigEndian.PutUint32(buf[base+8:base+12], uint32(off))
		binary.BigEndian.PutUint32(buf[base+12:base+16], uint32(size))
		binary.BigEndian.PutUint32(buf[base+16:base+20], 4)
	}
	writeArch(0, types.CPUAmd64, off1, len(s1))
	writeArch(1, types.CPUAmd64, off2, len(s2))

	copy(buf[off1:], s1)
	copy(buf[off2:], s2)

	ff, err := macho.NewFatFile(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("NewFatFile: %v", err)
	}
	return ff
}
