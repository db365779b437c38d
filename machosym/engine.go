package machosym

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/val35777/samply/macho"
	"github.com/val35777/samply/macho/types"
	"github.com/val35777/samply/shared"
)

// Engine is the Mach-O symbolication engine: it owns the two interfaces
// injected from outside the core (§6) and exposes the single entry point
// a caller drives a query through.
type Engine struct {
	Files shared.FileAndPathHelper
	DWARF shared.DWARFCollector
}

// New constructs an Engine. helper resolves external object paths to
// bytes; dwarf resolves addresses that stay local to an object against its
// own debug info.
func New(helper shared.FileAndPathHelper, dwarf shared.DWARFCollector) *Engine {
	return &Engine{Files: helper, DWARF: dwarf}
}

// Symbolicate is §4.3's top-level algorithm. r holds the root object's
// bytes; slice restricts it to one architecture's range within a fat
// binary, or is nil for a plain Mach-O file. query.BreakpadID must match
// the selected slice's own build-id.
func (e *Engine) Symbolicate(ctx context.Context, r io.ReaderAt, slice *SliceRange, query shared.SymbolicationQuery, res shared.SymbolicationResult) error {
	sr := r
	if slice != nil {
		sr = io.NewSectionReader(r, int64(slice.Offset), int64(slice.Length))
	}

	f, err := macho.NewFile(sr)
	if err != nil {
		return &shared.SymbolicationError{Kind: shared.MachOHeaderParseError, Err: err}
	}

	found, err := BuildID(f)
	if err != nil {
		return err
	}
	if found != query.BreakpadID {
		return &shared.SymbolicationError{
			Kind:    shared.UnmatchedBuildID,
			Message: fmt.Sprintf("found %s, expected %s", found, query.BreakpadID),
		}
	}

	symbols := buildSymbolMap(f)
	res.Init(symbols, query.Addresses)

	if query.Kind == shared.SymbolTableOnly || !res.WantsDebugInfo() {
		return nil
	}

	textVmaddr := uint64(0)
	if text := f.Segment("__TEXT"); text != nil {
		textVmaddr = text.Addr
	}

	pairs := seedAddressPairs(query.Addresses, textVmaddr)
	shared.SortAddressPairs(pairs)

	objMap := f.BuildObjectMap()
	internal, refs := splitLocalAndExternal(pairs, objMap)

	if e.DWARF != nil && len(internal) > 0 {
		if err := e.DWARF.CollectDebugInfo(ctx, dwarfSource{f}, internal, res); err != nil {
			return err
		}
	}

	// The root object and its backing bytes are not touched again past
	// this point; everything from here proceeds off the FIFO.
	f = nil
	sr = nil

	return e.traverse(ctx, refs, res)
}

// traverse implements §4.5: a breadth-first walk of the external-reference
// FIFO. One file is opened at a time, in order, so that resolution stays
// deterministic; an open failure is tolerated (the file may simply be
// absent), but a parse failure on a file that did open is fatal.
func (e *Engine) traverse(ctx context.Context, queue []shared.ObjectReference, res shared.SymbolicationResult) error {
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]

		br, err := e.Files.OpenFile(ctx, ref.Path)
		if err != nil {
			continue
		}
		data, err := readAll(br)
		if err != nil {
			continue
		}

		if ref.IsArchive {
			members, err := readArchiveMembers(data)
			if err != nil {
				return &shared.SymbolicationError{Kind: shared.ArchiveParseError, Path: ref.Path, Err: err}
			}
			for member, fa := range ref.Members {
				body, ok := members[member]
				if !ok {
					continue // missing archive member is skipped, not an error
				}
				next, err := e.resolveSubObject(body, fa, res)
				if err != nil {
					return wrapParseError(ref.Path+"("+member+")", err)
				}
				queue = append(queue, next...)
			}
			continue
		}

		next, err := e.resolveSubObject(data, ref.Functions, res)
		if err != nil {
			return wrapParseError(ref.Path, err)
		}
		queue = append(queue, next...)
	}
	return nil
}

func wrapParseError(path string, err error) error {
	if _, ok := err.(*shared.SymbolicationError); ok {
		return err
	}
	return &shared.SymbolicationError{Kind: shared.MachOHeaderParseError, Path: path, Err: err}
}

// resolveSubObject parses one external object's bytes, translates the
// wanted functions' original addresses into this object's own address
// space by looking each function up by name, and recurses into the
// local/external split so deeper references get enqueued.
func (e *Engine) resolveSubObject(data []byte, wanted shared.FunctionAddresses, res shared.SymbolicationResult) ([]shared.ObjectReference, error) {
	f, err := macho.NewFile(byteReaderAt(data))
	if err != nil {
		return nil, err
	}

	byName := make(map[string]uint64, len(f.Symtab.Syms))
	if f.Symtab != nil {
		for _, s := range f.Symtab.Syms {
			if !s.Type.IsStab() {
				byName[s.Name] = s.Value
			}
		}
	}

	var pairs []shared.AddressPair
	for name, addrs := range wanted {
		base, ok := byName[name]
		if !ok {
			continue
		}
		for _, a := range addrs {
			pairs = append(pairs, shared.AddressPair{Original: a.Original, InObject: base + a.Offset})
		}
	}
	shared.SortAddressPairs(pairs)

	objMap := f.BuildObjectMap()
	internal, refs := splitLocalAndExternal(pairs, objMap)

	if e.DWARF != nil && len(internal) > 0 {
		if err := e.DWARF.CollectDebugInfo(context.Background(), dwarfSource{f}, internal, res); err != nil {
			return nil, err
		}
	}

	return refs, nil
}

// seedAddressPairs implements scenario 2: translate each query address,
// measured relative to the root object's __TEXT segment, into the root
// object's vmaddr-based address space by adding the segment's vmaddr.
func seedAddressPairs(addrs []uint32, textVmaddr uint64) []shared.AddressPair {
	pairs := make([]shared.AddressPair, len(addrs))
	for i, a := range addrs {
		pairs[i] = shared.AddressPair{Original: a, InObject: textVmaddr + uint64(a)}
	}
	return pairs
}

// buildSymbolMap extracts the defined (non-stab) symbol table, sorted by
// address, with each symbol's size taken as the distance to the next
// symbol's address (the last symbol's size is left at 0, unknown).
func buildSymbolMap(f *macho.File) []shared.Symbol {
	if f.Symtab == nil {
		return nil
	}
	var out []shared.Symbol
	for _, s := range f.Symtab.Syms {
		if s.Type.IsStab() {
			continue
		}
		typ := s.Type & types.NTypeType
		if typ != types.NTypeSect && typ != types.NTypeAbs {
			continue
		}
		out = append(out, shared.Symbol{Address: uint32(s.Value), Name: s.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	for i := 0; i+1 < len(out); i++ {
		out[i].Size = out[i+1].Address - out[i].Address
	}
	return out
}

// dwarfSource adapts *macho.File to shared.DWARFSource.
type dwarfSource struct{ f *macho.File }

func (d dwarfSource) SectionData(name string) ([]byte, error) {
	sec := d.f.Segment("__DWARF")
	if sec == nil {
		return nil, fmt.Errorf("no __DWARF segment")
	}
	for _, s := range d.f.Sections {
		if s.Seg == "__DWARF" && s.Name == name {
			return s.Data()
		}
	}
	return nil, fmt.Errorf("section %s not found", name)
}

// byteReaderAt adapts a byte slice to io.ReaderAt without copying.
type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
