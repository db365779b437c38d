// Package machosym implements the Mach-O symbolication engine: fat-binary
// slice selection by build identifier, the symbol-table and external-
// object resolution algorithm, and the breadth-first traversal of object
// references (including static archive members) that the linker's object
// map points to.
package machosym

import (
	"fmt"
	"io"

	"github.com/val35777/samply/macho"
	"github.com/val35777/samply/shared"
)

// BuildID converts a parsed Mach-O's UUID load command into the canonical
// 33-character symbolication identifier. It fails with InvalidInput when
// the object carries no LC_UUID, which is the one semantically required
// field at this entry point.
func BuildID(f *macho.File) (string, error) {
	u := f.UUID()
	if u == nil {
		return "", &shared.SymbolicationError{Kind: shared.InvalidInput, Message: "missing uuid"}
	}
	return u.BuildID(), nil
}

// ExtractBuildID parses r as a single (non-fat) Mach-O object and returns
// its build identifier. This is §4.2: build-id extraction from one
// already-selected slice.
func ExtractBuildID(r io.ReaderAt) (string, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return "", &shared.SymbolicationError{Kind: shared.MachOHeaderParseError, Err: err}
	}
	return BuildID(f)
}

// SliceRange is a (offset, length) pair selecting one architecture's
// region within a fat binary's bytes.
type SliceRange struct {
	Offset uint64
	Length uint64
}

// SelectSliceByBuildID implements §4.1: it parses every architecture
// slice in turn, computes its build-id, and returns the range of the
// first slice whose build-id equals want. A slice that fails to parse is
// recorded and skipped rather than aborting the search. If no slice
// matches, the returned error carries every build-id observed and every
// per-slice parse error, both preserved for diagnostics.
func SelectSliceByBuildID(ff *macho.FatFile, want string) (SliceRange, error) {
	var observed []string
	var parseErrs []error

	for i, arch := range ff.Arches {
		f, err := ff.Slice(i)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("slice %d (%s/%s): %w", i, arch.CPU, arch.SubCPU.String(arch.CPU), err))
			continue
		}
		id, err := BuildID(f)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("slice %d (%s/%s): %w", i, arch.CPU, arch.SubCPU.String(arch.CPU), err))
			continue
		}
		observed = append(observed, id)
		if id == want {
			return SliceRange{Offset: uint64(arch.Offset), Length: uint64(arch.Size)}, nil
		}
	}

	return SliceRange{}, &shared.SymbolicationError{
		Kind:             shared.NoMatchMultiArch,
		ObservedBuildIDs: observed,
		ParseErrors:      parseErrs,
	}
}
