// Package macho provides read-only access to the parts of the Mach-O object
// file format that the symbolication engine needs: the file header, segments
// and sections, the UUID load command, and the raw symbol table (including
// the STABS entries that make up the linker's object map).
//
// It is derived from blacktop/go-macho, trimmed to the subset of the format
// that matters for symbolication; it does not parse code signatures, Swift
// or Objective-C metadata, or dyld fixups.
package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/val35777/samply/macho/types"
)

// FormatError is returned when a Mach-O structure is malformed.
type FormatError struct {
	Off int64
	Msg string
	Val interface{}
}

func (e *FormatError) Error() string {
	msg := e.Msg
	if e.Val != nil {
		msg += fmt.Sprintf(" (%v)", e.Val)
	}
	msg += fmt.Sprintf(" at offset %#x", e.Off)
	return msg
}

// Segment is a parsed LC_SEGMENT/LC_SEGMENT_64 command.
type Segment struct {
	types.SegmentHeader
}

// Section is one section within a segment.
type Section struct {
	Seg    string
	Name   string
	Addr   uint64
	Size   uint64
	Offset uint32

	sr io.ReaderAt
}

// Data reads the raw bytes backing the section.
func (s *Section) Data() ([]byte, error) {
	b := make([]byte, s.Size)
	n, err := s.sr.ReadAt(b, int64(s.Offset))
	if err != nil && uint64(n) < s.Size {
		return nil, err
	}
	return b, nil
}

// Symbol is one entry from LC_SYMTAB, including STABS debugger entries.
type Symbol struct {
	Name  string
	Type  types.NType
	Sect  uint8
	Desc  uint16
	Value uint64
}

// Symtab is the parsed LC_SYMTAB command.
type Symtab struct {
	types.SymtabCmd
	Syms []Symbol
}

// File is an open Mach-O object, executable, or dynamic library.
type File struct {
	types.FileHeader
	ByteOrder binary.ByteOrder

	Segments []*Segment
	Sections []*Section
	Symtab   *Symtab

	uuid   *types.UUID
	sr     io.ReaderAt
	closer io.Closer
}

// Open opens the named file and parses it as Mach-O.
func Open(name string) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	ff, err := NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	ff.closer = f
	return ff, nil
}

// Close closes the underlying file, if Open opened it.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// ReadAt reads directly from the object's backing storage.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.sr.ReadAt(p, off)
}

// NewFile parses a Mach-O object from r. r must hold a single (non-fat)
// Mach-O image starting at offset 0.
func NewFile(r io.ReaderAt) (*File, error) {
	f := &File{sr: r}

	var ident [4]byte
	if _, err := r.ReadAt(ident[:], 0); err != nil {
		return nil, err
	}
	be := binary.BigEndian.Uint32(ident[:])
	le := binary.LittleEndian.Uint32(ident[:])

	switch {
	case be == uint32(types.Magic32) || be == uint32(types.Magic64):
		f.ByteOrder = binary.BigEndian
	case le == uint32(types.Magic32) || le == uint32(types.Magic64):
		f.ByteOrder = binary.LittleEndian
	default:
		return nil, &FormatError{0, "invalid magic number", nil}
	}

	is64 := false
	hdrSize := int64(types.FileHeaderSize32)
	{
		var raw [8]uint32
		hb := make([]byte, 32)
		if _, err := r.ReadAt(hb, 0); err != nil {
			return nil, err
		}
		for i := range raw {
			raw[i] = f.ByteOrder.Uint32(hb[i*4:])
		}
		f.Magic = types.Magic(raw[0])
		f.CPU = types.CPU(raw[1])
		f.SubCPU = types.CPUSubtype(raw[2])
		f.Type = types.HeaderFileType(raw[3])
		f.NCommands = raw[4]
		f.SizeCommands = raw[5]
		f.Flags = types.HeaderFlag(raw[6])
		if f.Magic == types.Magic64 {
			is64 = true
			hdrSize = int64(types.FileHeaderSize64)
		}
	}

	offset := hdrSize
	cmdBuf := make([]byte, f.SizeCommands)
	if _, err := r.ReadAt(cmdBuf, offset); err != nil {
		return nil, fmt.Errorf("reading load commands: %w", err)
	}
	b := bytes.NewReader(cmdBuf)

	for i := uint32(0); i < f.NCommands; i++ {
		cmdOff, _ := b.Seek(0, io.SeekCurrent)
		var cmd, siz uint32
		if err := binary.Read(b, f.ByteOrder, &cmd); err != nil {
			return nil, err
		}
		if err := binary.Read(b, f.ByteOrder, &siz); err != nil {
			return nil, err
		}
		if siz < 8 || int64(siz) > int64(len(cmdBuf))-cmdOff {
			return nil, &FormatError{offset + cmdOff, "invalid load command size", siz}
		}
		body := cmdBuf[cmdOff : cmdOff+int64(siz)]

		switch types.LoadCmd(cmd) {
		case types.LC_SEGMENT, types.LC_SEGMENT_64:
			seg, secs, err := parseSegment(body, f.ByteOrder, is64, f.sr)
			if err != nil {
				return nil, err
			}
			f.Segments = append(f.Segments, seg)
			f.Sections = append(f.Sections, secs...)
		case types.LC_SYMTAB:
			st, err := parseSymtab(body, f.ByteOrder, is64, f.sr)
			if err != nil {
				return nil, err
			}
			f.Symtab = st
		case types.LC_UUID:
			var u types.UUID
			copy(u[:], body[8:24])
			f.uuid = &u
		}

		if _, err := b.Seek(cmdOff+int64(siz), io.SeekStart); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func parseSegment(body []byte, bo binary.ByteOrder, is64 bool, sr io.ReaderAt) (*Segment, []*Section, error) {
	var name [16]byte
	var addr, memsz, offset, filesz uint64
	var nsect uint32
	var secBase int

	if is64 {
		copy(name[:], body[8:24])
		addr = bo.Uint64(body[24:])
		memsz = bo.Uint64(body[32:])
		offset = bo.Uint64(body[40:])
		filesz = bo.Uint64(body[48:])
		nsect = bo.Uint32(body[64:])
		secBase = 72
	} else {
		copy(name[:], body[8:24])
		addr = uint64(bo.Uint32(body[24:]))
		memsz = uint64(bo.Uint32(body[28:]))
		offset = uint64(bo.Uint32(body[32:]))
		filesz = uint64(bo.Uint32(body[36:]))
		nsect = bo.Uint32(body[48:])
		secBase = 56
	}

	seg := &Segment{types.SegmentHeader{
		Len:    uint32(len(body)),
		Name:   cstring(name[:]),
		Addr:   addr,
		Memsz:  memsz,
		Offset: offset,
		Filesz: filesz,
		Nsect:  nsect,
	}}

	var secs []*Section
	secSize := 68
	if is64 {
		secSize = 80
	}
	for i := uint32(0); i < nsect; i++ {
		off := secBase + int(i)*secSize
		if off+secSize > len(body) {
			return nil, nil, &FormatError{int64(off), "truncated section header", nil}
		}
		sh := body[off:]
		var sname, ssegname [16]byte
		copy(sname[:], sh[0:16])
		copy(ssegname[:], sh[16:32])
		var saddr, ssize uint64
		var soff uint32
		if is64 {
			saddr = bo.Uint64(sh[32:])
			ssize = bo.Uint64(sh[40:])
			soff = bo.Uint32(sh[48:])
		} else {
			saddr = uint64(bo.Uint32(sh[32:]))
			ssize = uint64(bo.Uint32(sh[36:]))
			soff = bo.Uint32(sh[40:])
		}
		secs = append(secs, &Section{
			Seg:    cstring(ssegname[:]),
			Name:   cstring(sname[:]),
			Addr:   saddr,
			Size:   ssize,
			Offset: soff,
			sr:     sr,
		})
	}
	return seg, secs, nil
}

func parseSymtab(body []byte, bo binary.ByteOrder, is64 bool, sr io.ReaderAt) (*Symtab, error) {
	symoff := bo.Uint32(body[8:])
	nsyms := bo.Uint32(body[12:])
	stroff := bo.Uint32(body[16:])
	strsize := bo.Uint32(body[20:])

	entrySize := 12
	if is64 {
		entrySize = 16
	}
	symBuf := make([]byte, int(nsyms)*entrySize)
	if _, err := sr.ReadAt(symBuf, int64(symoff)); err != nil {
		return nil, fmt.Errorf("reading symbol table: %w", err)
	}
	strBuf := make([]byte, strsize)
	if _, err := sr.ReadAt(strBuf, int64(stroff)); err != nil {
		return nil, fmt.Errorf("reading string table: %w", err)
	}

	syms := make([]Symbol, nsyms)
	for i := range syms {
		e := symBuf[i*entrySize:]
		nameOff := bo.Uint32(e[0:])
		typ := types.NType(e[4])
		sect := e[5]
		desc := bo.Uint16(e[6:])
		var value uint64
		if is64 {
			value = bo.Uint64(e[8:])
		} else {
			value = uint64(bo.Uint32(e[8:]))
		}
		if nameOff >= uint32(len(strBuf)) {
			return nil, &FormatError{int64(symoff) + int64(i*entrySize), "invalid symbol name offset", nameOff}
		}
		name := cstring(strBuf[nameOff:])
		// Strip the leading underscore from dotted (Go-style) symbol names
		// such as "_main.main"; other names keep their underscore. See
		// blacktop/go-macho issue 33808.
		if strings.Contains(name, ".") && len(name) > 0 && name[0] == '_' {
			name = name[1:]
		}
		syms[i] = Symbol{Name: name, Type: typ, Sect: sect, Desc: desc, Value: value}
	}

	return &Symtab{
		SymtabCmd: types.SymtabCmd{Symoff: symoff, Nsyms: nsyms, Stroff: stroff, Strsize: strsize},
		Syms:      syms,
	}, nil
}

func cstring(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		i = len(b)
	}
	return string(b[:i])
}

// UUID returns the LC_UUID value, or nil if the object carries none.
func (f *File) UUID() *types.UUID {
	return f.uuid
}

// Segment returns the first segment with the given name, or nil.
func (f *File) Segment(name string) *Segment {
	for _, s := range f.Segments {
		if s.Name == name {
			return s
		}
	}
	return nil
}
