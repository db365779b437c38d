package macho

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/val35777/samply/macho/types"
)

// ErrNotFat is returned by OpenFat or NewFatFile when the file is a plain
// (non-universal) Mach-O image.
var ErrNotFat = &FormatError{0, "not a fat Mach-O file", nil}

// FatArch describes one architecture slice's header within a universal
// binary. The slice's contents are parsed on demand via FatFile.Slice, not
// eagerly: a malformed slice must not prevent inspecting its siblings.
type FatArch struct {
	types.FatArchHeader
}

// FatFile is a universal ("fat") Mach-O binary: a short header followed by
// one slice per contained architecture.
type FatFile struct {
	Magic  types.Magic
	Arches []FatArch

	r      io.ReaderAt
	closer io.Closer
}

// OpenFat opens the named file and parses it as a universal binary.
func OpenFat(name string) (*FatFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	ff, err := NewFatFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	ff.closer = f
	return ff, nil
}

// Close closes the underlying file, if OpenFat opened it.
func (ff *FatFile) Close() error {
	if ff.closer != nil {
		return ff.closer.Close()
	}
	return nil
}

// NewFatFile reads the fat header and arch table from r. It returns
// ErrNotFat if r instead holds a single-architecture image. Individual
// slices are not parsed here; call Slice to parse one.
func NewFatFile(r io.ReaderAt) (*FatFile, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, err
	}
	magic := binary.BigEndian.Uint32(hdr[0:4])
	if types.Magic(magic) != types.MagicFat {
		return nil, ErrNotFat
	}
	narch := binary.BigEndian.Uint32(hdr[4:8])
	if narch == 0 {
		return nil, &FormatError{0, "fat file with no architectures", nil}
	}

	ff := &FatFile{Magic: types.Magic(magic), r: r}
	const archHdrSize = 20
	buf := make([]byte, int(narch)*archHdrSize)
	if _, err := r.ReadAt(buf, 8); err != nil {
		return nil, fmt.Errorf("reading fat arch headers: %w", err)
	}

	for i := uint32(0); i < narch; i++ {
		b := buf[i*archHdrSize:]
		ff.Arches = append(ff.Arches, FatArch{types.FatArchHeader{
			CPU:    types.CPU(binary.BigEndian.Uint32(b[0:4])),
			SubCPU: types.CPUSubtype(binary.BigEndian.Uint32(b[4:8])),
			Offset: binary.BigEndian.Uint32(b[8:12]),
			Size:   binary.BigEndian.Uint32(b[12:16]),
			Align:  binary.BigEndian.Uint32(b[16:20]),
		}})
	}

	return ff, nil
}

// Slice parses the i'th architecture slice as a standalone Mach-O object.
// Callers that only need the slice's range (e.g. to hand it to a
// downstream symbolicator without holding the parsed form open) should
// read ff.Arches[i].Offset/Size directly instead.
func (ff *FatFile) Slice(i int) (*File, error) {
	a := ff.Arches[i]
	sr := io.NewSectionReader(ff.r, int64(a.Offset), int64(a.Size))
	f, err := NewFile(sr)
	if err != nil {
		return nil, fmt.Errorf("parsing fat slice %d (%s): %w", i, a.CPU, err)
	}
	return f, nil
}

// GetArchRange returns the file offset and size of the slice matching cpu
// and subCPU exactly, falling back to any slice that matches cpu alone
// when subCPU is zero. It reports an error when no slice matches, mirroring
// the "no matching arch in multi-arch binary" failure mode a profiled
// process can legitimately hit when the system picked a slice the
// symbolicator does not recognize.
func (ff *FatFile) GetArchRange(cpu types.CPU, subCPU types.CPUSubtype) (offset, size uint64, err error) {
	var fallback *FatArch
	for i := range ff.Arches {
		a := &ff.Arches[i]
		if a.CPU != cpu {
			continue
		}
		if a.SubCPU == subCPU {
			return uint64(a.Offset), uint64(a.Size), nil
		}
		if fallback == nil && subCPU == 0 {
			fallback = a
		}
	}
	if fallback != nil {
		return uint64(fallback.Offset), uint64(fallback.Size), nil
	}
	return 0, 0, fmt.Errorf("no slice for cpu %s/%s in fat binary", cpu, subCPU.String(cpu))
}
