// Package pdbfmt is a minimal reader for the Multi-Stream File (MSF)
// container and the PDB/CodeView records built on top of it: the
// superblock and stream directory, the DBI stream's module list, a
// module's symbol records, and the C13 line-number and inlinee-lines
// subsections.
//
// No third-party Go library for this format was found anywhere in the
// reference set this module was built from (unlike Mach-O, DWARF, and
// archive parsing, which all have one); this package exists for the same
// reason the Mach-O reader does — the format has to be read somehow — but
// is original code rather than an adaptation of an existing reader.
package pdbfmt

import (
	"encoding/binary"
	"fmt"
	"io"
)

const msfMagic = "Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00"

// MSF is a parsed Multi-Stream File: the superblock has already been read
// and every stream's pages have already been gathered into one contiguous
// byte slice per stream.
type MSF struct {
	PageSize uint32
	streams  [][]byte
}

// Stream returns the i'th stream's bytes, or nil if i is out of range or
// the stream is empty (MSF represents an absent stream with size
// 0xffffffff; this reader treats it the same as zero-length).
func (m *MSF) Stream(i uint32) []byte {
	if int(i) >= len(m.streams) {
		return nil
	}
	return m.streams[i]
}

// NumStreams reports how many streams the directory named.
func (m *MSF) NumStreams() int { return len(m.streams) }

// NewMSFFromStreams builds an MSF directly from already-materialized stream
// contents, bypassing the superblock/page-directory parse in Open. This is
// the seam callers that assemble streams programmatically (rather than
// reading them from a page-structured file) build a *PDB through.
func NewMSFFromStreams(streams [][]byte) *MSF {
	return &MSF{streams: streams}
}

// Open parses the MSF superblock and stream directory from r (a file of
// the given total size) and materializes every stream into memory.
func Open(r io.ReaderAt, size int64) (*MSF, error) {
	var magic [32]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return nil, err
	}
	if string(magic[:]) != msfMagic {
		return nil, fmt.Errorf("pdbfmt: bad MSF magic")
	}

	hdr := make([]byte, 24)
	if _, err := r.ReadAt(hdr, 32); err != nil {
		return nil, err
	}
	pageSize := binary.LittleEndian.Uint32(hdr[0:4])
	// hdr[4:8] is the free page map index, unused by a read-only parser.
	numPages := binary.LittleEndian.Uint32(hdr[8:12])
	dirSize := binary.LittleEndian.Uint32(hdr[12:16])
	// hdr[16:20] reserved.
	dirMapPage := binary.LittleEndian.Uint32(hdr[20:24])

	readPage := func(page uint32) ([]byte, error) {
		if int64(page)*int64(pageSize) >= int64(numPages)*int64(pageSize) {
			return nil, fmt.Errorf("pdbfmt: page %d out of range", page)
		}
		buf := make([]byte, pageSize)
		if _, err := r.ReadAt(buf, int64(page)*int64(pageSize)); err != nil && err != io.EOF {
			return nil, err
		}
		return buf, nil
	}

	numDirPages := ceilDiv(dirSize, pageSize)
	dirMapBuf, err := readPage(dirMapPage)
	if err != nil {
		return nil, err
	}
	dirPages := make([]uint32, numDirPages)
	for i := range dirPages {
		dirPages[i] = binary.LittleEndian.Uint32(dirMapBuf[i*4:])
	}

	dirBytes := make([]byte, 0, dirSize)
	for _, p := range dirPages {
		buf, err := readPage(p)
		if err != nil {
			return nil, err
		}
		dirBytes = append(dirBytes, buf...)
	}
	dirBytes = dirBytes[:dirSize]

	numStreams := binary.LittleEndian.Uint32(dirBytes[0:4])
	sizes := make([]uint32, numStreams)
	off := 4
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint32(dirBytes[off:])
		off += 4
	}

	streams := make([][]byte, numStreams)
	for i, sz := range sizes {
		if sz == 0xffffffff {
			continue
		}
		numPages := ceilDiv(sz, pageSize)
		pages := make([]uint32, numPages)
		for j := range pages {
			pages[j] = binary.LittleEndian.Uint32(dirBytes[off:])
			off += 4
		}
		buf := make([]byte, 0, sz)
		for _, p := range pages {
			pb, err := readPage(p)
			if err != nil {
				return nil, err
			}
			buf = append(buf, pb...)
		}
		streams[i] = buf[:sz]
	}

	return &MSF{PageSize: pageSize, streams: streams}, nil
}

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
