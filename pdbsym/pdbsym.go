// Package pdbsym implements the PDB symbolication engine: given a
// relative virtual address, find the enclosing procedure across every
// module in the DBI, resolve its line program into a source location, and
// walk inline-site records to build the complete frame stack, procedure
// first and each contained inline site after it in encounter order.
package pdbsym

import (
	"sort"

	"github.com/val35777/samply/pdbfmt"
	"github.com/val35777/samply/shared"
)

// Context holds everything the engine needs across many FindFrames calls:
// the parsed PDB, its address map, and the injected type dumper.
type Context struct {
	PDB            *pdbfmt.PDB
	AddressMap     *pdbfmt.AddressMap
	SegmentLengths []uint32
	Dumper         shared.TypeDumper
}

// New constructs a Context ready to answer FindFrames queries.
func New(pdb *pdbfmt.PDB, am *pdbfmt.AddressMap, segmentLengths []uint32, dumper shared.TypeDumper) *Context {
	return &Context{PDB: pdb, AddressMap: am, SegmentLengths: segmentLengths, Dumper: dumper}
}

// procedure is the module+symbol-record pair a search locates, carrying
// everything needed to resolve lines and inline sites without re-walking
// the module.
type procedure struct {
	mod       *pdbfmt.Module
	symData   []byte
	c13       []byte
	proc      pdbfmt.ProcSym
	rvaStart  uint32
	rvaEnd    uint32
}

// findProcedure implements §4.6 step 1: walk every module's symbol stream
// looking for a procedure symbol whose range contains rva, stopping at
// the first hit.
func (c *Context) findProcedure(rva uint32) *procedure {
	for i := range c.PDB.DBI.Modules {
		mod := &c.PDB.DBI.Modules[i]
		data := c.PDB.Stream(uint32(mod.SymStreamIndex))
		if data == nil {
			continue
		}
		symEnd := int(mod.SymByteSize)
		if symEnd > len(data) {
			symEnd = len(data)
		}
		symData := data[:symEnd]
		c13End := symEnd + int(mod.C13LinesSize)
		if c13End > len(data) {
			c13End = len(data)
		}
		c13 := data[symEnd:c13End]

		var found *pdbfmt.ProcSym
		pdbfmt.WalkSymbols(symData, func(kind uint16, recOffset uint32, body []byte) bool {
			if kind != pdbfmt.SymGProc32 && kind != pdbfmt.SymLProc32 {
				return true
			}
			p := pdbfmt.ParseProcSym(body, c.PDB.Strings)
			p.RecOffset = recOffset
			start := c.AddressMap.RVA(p.Segment, p.Offset)
			end := start + p.CodeSize
			if rva >= start && rva < end {
				pp := p
				found = &pp
				return false
			}
			return true
		})

		if found != nil {
			start := c.AddressMap.RVA(found.Segment, found.Offset)
			return &procedure{
				mod:      mod,
				symData:  symData,
				c13:      c13,
				proc:     *found,
				rvaStart: start,
				rvaEnd:   start + found.CodeSize,
			}
		}
	}
	return nil
}

// FindFrames is the single-address contract of §4.6: for rva not
// contained in any procedure, it returns an empty (nil) list.
func (c *Context) FindFrames(rva uint32) []shared.Frame {
	res := c.FindFramesForAddresses([]uint32{rva})
	return res[rva]
}

// FindFramesForAddresses is the batched form of §4.6: addresses sharing a
// procedure are resolved together, with each line-range intersection done
// via binary search over the sorted address set. Every input address has
// exactly one (possibly empty) result list.
func (c *Context) FindFramesForAddresses(rvas []uint32) map[uint32][]shared.Frame {
	sorted := append([]uint32(nil), rvas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[uint32][]shared.Frame, len(rvas))
	for _, a := range rvas {
		out[a] = nil
	}

	i := 0
	for i < len(sorted) {
		proc := c.findProcedure(sorted[i])
		if proc == nil {
			i++
			continue
		}
		covered := addressesCoveredByRange(sorted, proc.rvaStart, proc.rvaEnd)
		if len(covered) == 0 {
			i++
			continue
		}
		c.resolveProcedure(proc, covered, out)
		i += len(covered)
	}

	return out
}

// resolveProcedure implements §4.6 steps 2–5 for one procedure and the
// addresses known to fall within it.
func (c *Context) resolveProcedure(proc *procedure, addrs []uint32, out map[uint32][]shared.Frame) {
	procName := proc.proc.Name
	if c.Dumper != nil {
		procName = c.Dumper.DumpFunctionName(procName, 0)
	}

	// Step 2/3: seed one frame per address, then attach the line-program
	// location using the "no-size" form (a line's end is the next line's
	// start, or the procedure's end for the last line).
	for _, a := range addrs {
		out[a] = []shared.Frame{{Function: procName}}
	}

	lines := pdbfmt.ParseLineProgram(proc.c13, c.PDB.Strings)
	rvaLines := make([]pdbfmt.LineEntry, len(lines))
	rvaOffsets := make([]uint32, len(lines))
	for i, l := range lines {
		rvaLines[i] = l
		rvaOffsets[i] = c.AddressMap.RVA(proc.proc.Segment, l.Offset)
	}
	sortLinesByOffset(rvaLines, rvaOffsets)

	for li, start := range rvaOffsets {
		end := proc.rvaEnd
		if li+1 < len(rvaOffsets) {
			end = rvaOffsets[li+1]
		}
		for _, a := range addressesCoveredByRange(addrs, start, end) {
			out[a][0].Location = &shared.Location{File: rvaLines[li].File, Line: rvaLines[li].Line}
		}
	}

	// Step 4: walk symbols after the procedure record for inline sites,
	// appending a frame to every address whose offset falls within one of
	// the site's explicitly-lengthed ranges.
	inlinees := pdbfmt.ParseInlineeLines(proc.c13, c.PDB.Strings)
	fileNames := pdbfmt.ParseFileChecksumNames(proc.c13, c.PDB.Strings)

	afterProc := false
	pdbfmt.WalkSymbols(proc.symData, func(kind uint16, recOffset uint32, body []byte) bool {
		if recOffset == proc.proc.RecOffset {
			afterProc = true
			return true
		}
		if !afterProc {
			return true
		}
		if kind == pdbfmt.SymGProc32 || kind == pdbfmt.SymLProc32 {
			return false // next procedure: stop
		}
		if kind != pdbfmt.SymInlineSite {
			return true
		}
		site := pdbfmt.ParseInlineSiteSym(body)
		inlinee, ok := inlinees[site.Inlinee]
		if !ok {
			return true
		}
		name := fileNames[inlinee.FileOffset]
		inlineeName := inlineeDisplayName(c.Dumper, site.Inlinee)

		ranges := pdbfmt.DecodeInlineAnnotations(site.Annotations, proc.proc.Offset, inlinee.StartLine)
		for _, rng := range ranges {
			rvaStart := c.AddressMap.RVA(proc.proc.Segment, rng.Offset)
			rvaEnd := rvaStart + rng.Length
			for _, a := range addressesCoveredByRange(addrs, rvaStart, rvaEnd) {
				out[a] = append(out[a], shared.Frame{
					Function: inlineeName,
					Location: &shared.Location{File: name, Line: rng.Line},
				})
			}
		}
		return true
	})

	// Step 5: per scenario 4, frames are returned outermost first. The
	// procedure frame was seeded first and each inline site's frame was
	// appended in the order its S_INLINESITE record was encountered,
	// which (CodeView nests an inline site's record before its children's)
	// is already outside-to-inside — no further reordering is needed.
}

func inlineeDisplayName(dumper shared.TypeDumper, inlineeID uint32) string {
	if dumper != nil {
		return dumper.DumpInlineeName(inlineeID)
	}
	return ""
}

func sortLinesByOffset(lines []pdbfmt.LineEntry, offsets []uint32) {
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && offsets[j-1] > offsets[j]; j-- {
			offsets[j-1], offsets[j] = offsets[j], offsets[j-1]
			lines[j-1], lines[j] = lines[j], lines[j-1]
		}
	}
}

// addressesCoveredByRange returns the contiguous sub-slice of the sorted
// addrs lying in the half-open range [start, end), found by binary search.
// This is the explicitly testable property from §8: the result is always
// a contiguous sub-slice, and contains exactly those addresses x with
// start <= x < end.
func addressesCoveredByRange(addrs []uint32, start, end uint32) []uint32 {
	lo := sort.Search(len(addrs), func(i int) bool { return addrs[i] >= start })
	hi := sort.Search(len(addrs), func(i int) bool { return addrs[i] >= end })
	if lo >= hi {
		return nil
	}
	return addrs[lo:hi]
}
