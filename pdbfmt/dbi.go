package pdbfmt

import (
	"encoding/binary"
	"fmt"
)

// Module is one compiland (object file) the DBI stream lists: its name,
// its containing library, and the stream carrying its symbols and C13
// line-number subsections.
type Module struct {
	ObjectFile      string
	LibraryName     string
	SymStreamIndex  uint16
	SymByteSize     uint32
	C13LinesSize    uint32
}

// DBI is the parsed Debug Information stream: the module list the
// symbolication engine walks looking for the procedure that contains a
// query RVA.
type DBI struct {
	Modules []Module
}

// dbiHeader mirrors the fixed 64-byte DBI stream header.
type dbiHeader struct {
	VersionSignature   int32
	VersionHeader      uint32
	Age                uint32
	GlobalStreamIndex  uint16
	BuildNumber        uint16
	PublicStreamIndex  uint16
	PdbDllVersion      uint16
	SymRecordStream    uint16
	PdbDllRbld         uint16
	ModInfoSize        int32
	SectionContribSize int32
	SectionMapSize     int32
	SourceInfoSize     int32
	TypeServerMapSize  int32
	MFCTypeServerIndex uint32
	OptionalDbgSize    int32
	ECSubstreamSize    int32
	Flags              uint16
	Machine            uint16
	Reserved           uint32
}

func parseDBI(data []byte) (*DBI, error) {
	if len(data) < 64 {
		return nil, fmt.Errorf("pdbfmt: truncated DBI stream header")
	}
	h := dbiHeader{
		VersionSignature:   int32(binary.LittleEndian.Uint32(data[0:4])),
		VersionHeader:      binary.LittleEndian.Uint32(data[4:8]),
		Age:                binary.LittleEndian.Uint32(data[8:12]),
		GlobalStreamIndex:  binary.LittleEndian.Uint16(data[12:14]),
		BuildNumber:        binary.LittleEndian.Uint16(data[14:16]),
		PublicStreamIndex:  binary.LittleEndian.Uint16(data[16:18]),
		PdbDllVersion:      binary.LittleEndian.Uint16(data[18:20]),
		SymRecordStream:    binary.LittleEndian.Uint16(data[20:22]),
		PdbDllRbld:         binary.LittleEndian.Uint16(data[22:24]),
		ModInfoSize:        int32(binary.LittleEndian.Uint32(data[24:28])),
		SectionContribSize: int32(binary.LittleEndian.Uint32(data[28:32])),
		SectionMapSize:     int32(binary.LittleEndian.Uint32(data[32:36])),
		SourceInfoSize:     int32(binary.LittleEndian.Uint32(data[36:40])),
		TypeServerMapSize:  int32(binary.LittleEndian.Uint32(data[40:44])),
		MFCTypeServerIndex: binary.LittleEndian.Uint32(data[44:48]),
		OptionalDbgSize:    int32(binary.LittleEndian.Uint32(data[48:52])),
		ECSubstreamSize:    int32(binary.LittleEndian.Uint32(data[52:56])),
		Flags:              binary.LittleEndian.Uint16(data[56:58]),
		Machine:            binary.LittleEndian.Uint16(data[58:60]),
	}

	off := 64
	modEnd := off + int(h.ModInfoSize)
	if modEnd > len(data) {
		return nil, fmt.Errorf("pdbfmt: DBI module substream overruns stream")
	}

	dbi := &DBI{}
	for off < modEnd {
		// ModInfo: Unused(4) SC(...section contribution, 28 bytes fixed
		// part)+, Flags(2), ModuleSymStream(2), SymByteSize(4),
		// C11ByteSize(4), C13ByteSize(4), SourceFileCount(2), Padding(2),
		// Unused2(4), SourceFileNameIndex(4), PdbFilePathNameIndex(4),
		// then two NUL-terminated strings: module name, object file name.
		if off+64 > modEnd {
			break
		}
		rec := data[off:]
		symStream := binary.LittleEndian.Uint16(rec[34:36])
		symSize := binary.LittleEndian.Uint32(rec[36:40])
		c13Size := binary.LittleEndian.Uint32(rec[44:48])

		strOff := off + 64
		moduleName := cstr(data[strOff:])
		strOff += len(moduleName) + 1
		objName := cstr(data[strOff:])
		strOff += len(objName) + 1
		strOff = alignUp4(strOff)

		dbi.Modules = append(dbi.Modules, Module{
			ObjectFile:     objName,
			LibraryName:    moduleName,
			SymStreamIndex: symStream,
			SymByteSize:    symSize,
			C13LinesSize:   c13Size,
		})

		off = strOff
	}

	return dbi, nil
}

func alignUp4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}
