package pdbfmt

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Fixed stream indices defined by the PDB format.
const (
	streamPDBInfo = 1
	streamDBI     = 3
)

// PDB is a parsed Program Database: the MSF container plus the handful of
// streams the symbolication engine actually reads.
type PDB struct {
	msf     *MSF
	DBI     *DBI
	Strings *StringTable
}

// OpenPDB parses r (a PDB file of the given size) down to the DBI module
// list and the global string table.
func OpenPDB(r io.ReaderAt, size int64) (*PDB, error) {
	msf, err := Open(r, size)
	if err != nil {
		return nil, err
	}

	names, err := namedStreamIndex(msf.Stream(streamPDBInfo), "/names")
	if err != nil {
		return nil, err
	}
	strings, err := parseStringTable(msf.Stream(names))
	if err != nil {
		return nil, err
	}

	dbi, err := parseDBI(msf.Stream(streamDBI))
	if err != nil {
		return nil, err
	}

	return &PDB{msf: msf, DBI: dbi, Strings: strings}, nil
}

// NewPDBFromParts assembles a PDB from already-parsed components instead of
// through OpenPDB's on-disk parse — for callers that build the MSF, DBI, and
// string table directly.
func NewPDBFromParts(msf *MSF, dbi *DBI, strings *StringTable) *PDB {
	return &PDB{msf: msf, DBI: dbi, Strings: strings}
}

// Stream exposes a raw MSF stream by index, e.g. for a module's symbol
// stream named in DBI.Modules[i].SymStreamIndex.
func (p *PDB) Stream(i uint32) []byte { return p.msf.Stream(i) }

// namedStreamIndex reads the PDB Info Stream header and its named-stream
// map to find the stream index registered under name (e.g. "/names").
func namedStreamIndex(info []byte, name string) (uint32, error) {
	if len(info) < 8 {
		return 0, fmt.Errorf("pdbfmt: truncated PDB info stream")
	}
	// version(4) signature(4) age(4) guid(16), then the string buffer.
	off := 28
	if off > len(info) {
		return 0, fmt.Errorf("pdbfmt: truncated PDB info stream header")
	}
	strBufLen := int(binary.LittleEndian.Uint32(info[off:]))
	off += 4
	strBuf := info[off : off+strBufLen]
	off += strBufLen

	numEntries := int(binary.LittleEndian.Uint32(info[off:]))
	off += 4
	numPresent := int(binary.LittleEndian.Uint32(info[off:]))
	off += 4
	_ = numEntries

	presentWords := ceilDiv(uint32(numPresent), 32)
	off += int(presentWords) * 4 // present bit vector; we scan all entries regardless
	deletedWords := binary.LittleEndian.Uint32(info[off:])
	off += 4 + int(deletedWords)*4

	for i := 0; i < numPresent; i++ {
		if off+8 > len(info) {
			break
		}
		nameOff := binary.LittleEndian.Uint32(info[off:])
		stream := binary.LittleEndian.Uint32(info[off+4:])
		off += 8
		if int(nameOff) >= len(strBuf) {
			continue
		}
		if cstr(strBuf[nameOff:]) == name {
			return stream, nil
		}
	}
	return 0, fmt.Errorf("pdbfmt: named stream %q not found", name)
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
