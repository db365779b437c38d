// Package dwarfsym provides the default DWARF collector: the injected
// helper the Mach-O symbolication engine calls to resolve addresses that
// the object map routed to local debug info instead of an external object.
// It is the one piece of the core that is explicitly "consumed, not
// implemented" by the engine itself, but a toolchain needs some concrete
// collector to wire in, so this package supplies one built on
// blacktop/go-dwarf.
package dwarfsym

import (
	"context"
	"sort"

	"github.com/blacktop/go-dwarf"

	"github.com/val35777/samply/shared"
)

// sections the Mach-O DWARF segment carries, keyed by the section name the
// engine's shared.DWARFSource is expected to answer for.
var sectionNames = []string{
	"__debug_abbrev", "__debug_aranges", "__debug_frame", "__debug_info",
	"__debug_line", "__debug_pubnames", "__debug_ranges", "__debug_str",
}

// Collector is the default shared.DWARFCollector: it loads the eight
// DWARF sections listed in sectionNames from the object, walks each
// compile unit's subprogram tree to find the procedure and any inlined
// calls containing each address, and adds one frame stack (procedure
// first, then each containing inlined call) per address to the result.
type Collector struct{}

// New returns a ready-to-use Collector.
func New() *Collector { return &Collector{} }

// CollectDebugInfo implements shared.DWARFCollector.
func (c *Collector) CollectDebugInfo(ctx context.Context, obj shared.DWARFSource, pairs []shared.AddressPair, res shared.SymbolicationResult) error {
	if !res.WantsDebugInfo() || len(pairs) == 0 {
		return nil
	}

	data, err := loadData(obj)
	if err != nil {
		// No usable DWARF in this object: these addresses are simply
		// omitted from the per-address debug info, not an error.
		return nil
	}

	sorted := append([]shared.AddressPair(nil), pairs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].InObject < sorted[j].InObject })

	r := data.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		cu := entry
		lr, err := data.LineReader(cu)
		if err != nil {
			lr = nil
		}
		for _, p := range sorted {
			frames := framesForAddress(data, r, cu, lr, p.InObject)
			if len(frames) > 0 {
				res.AddDebugInfo(p.Original, frames)
			}
		}
		r.SkipChildren()
	}

	return nil
}

func loadData(obj shared.DWARFSource) (*dwarf.Data, error) {
	sec := make([][]byte, len(sectionNames))
	for i, name := range sectionNames {
		b, err := obj.SectionData(name)
		if err == nil {
			sec[i] = b
		}
	}
	return dwarf.New(sec[0], sec[1], sec[2], sec[3], sec[4], sec[5], sec[6], sec[7])
}

// framesForAddress walks the subprogram tree under cu looking for the
// procedure (and any nested inlined_subroutine entries) that contain addr,
// returning frames outermost-first.
func framesForAddress(data *dwarf.Data, r *dwarf.Reader, cu *dwarf.Entry, lr *dwarf.LineReader, addr uint64) []shared.Frame {
	r.Seek(cu.Offset)
	r.Next() // re-consume the compile unit entry itself

	var stack []shared.Frame
	depth := 0
	inProc := false

	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag == 0 {
			depth--
			if depth < 0 {
				break
			}
			continue
		}

		switch entry.Tag {
		case dwarf.TagSubprogram:
			if depth > 0 && !inProc {
				r.SkipChildren()
				continue
			}
			lo, hi, ok := pcRange(entry)
			if !ok || addr < lo || addr >= hi {
				r.SkipChildren()
				continue
			}
			stack = append(stack, shared.Frame{
				Function: attrString(entry, dwarf.AttrName),
				Location: lineLocation(lr, addr),
			})
			inProc = true
		case dwarf.TagInlinedSubroutine:
			if !inProc {
				r.SkipChildren()
				continue
			}
			lo, hi, ok := pcRange(entry)
			if !ok || addr < lo || addr >= hi {
				r.SkipChildren()
				continue
			}
			name := attrString(entry, dwarf.AttrAbstractOrigin)
			if name == "" {
				name = attrString(entry, dwarf.AttrName)
			}
			stack = append(stack, shared.Frame{Function: name, Location: lineLocation(lr, addr)})
		}

		if entry.Children {
			depth++
		}
	}

	return stack
}

func pcRange(e *dwarf.Entry) (lo, hi uint64, ok bool) {
	loV := e.Val(dwarf.AttrLowpc)
	hiV := e.Val(dwarf.AttrHighpc)
	if loV == nil || hiV == nil {
		return 0, 0, false
	}
	lo, ok = loV.(uint64)
	if !ok {
		return 0, 0, false
	}
	switch v := hiV.(type) {
	case uint64:
		hi = v
		if hi < lo {
			hi += lo
		}
	case int64:
		hi = lo + uint64(v)
	default:
		return 0, 0, false
	}
	return lo, hi, true
}

func attrString(e *dwarf.Entry, a dwarf.Attr) string {
	v := e.Val(a)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func lineLocation(lr *dwarf.LineReader, addr uint64) *shared.Location {
	if lr == nil {
		return nil
	}
	var entry dwarf.LineEntry
	lr.Seek(0)
	var best *dwarf.LineEntry
	for {
		if err := lr.Next(&entry); err != nil {
			break
		}
		e := entry
		if e.Address <= addr && !e.EndSequence {
			best = &e
		}
		if e.Address > addr {
			break
		}
	}
	if best == nil {
		return nil
	}
	loc := &shared.Location{Line: uint32(best.Line), Column: uint32(best.Column)}
	if best.File != nil {
		loc.File = best.File.Name
	}
	return loc
}
