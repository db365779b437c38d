// Package typesig provides a default implementation of the type-dumper
// interface the PDB symbolication engine calls to render a function's
// signature. Type-name pretty-printing is explicitly out of scope for the
// core (§1): the real work of walking a PDB type index into a C++
// signature string belongs to a dedicated injected helper. This package
// supplies a plain fallback so the engine has something to call when no
// richer dumper is wired in.
package typesig

import "fmt"

// PlainDumper renders function names as-is, ignoring type indices, and
// renders inlinee ids through InlineeNames or a synthetic "inline_<id>"
// label. It satisfies shared.TypeDumper.
type PlainDumper struct {
	// InlineeNames optionally maps an inlinee id to a human name already
	// known by the caller (e.g. resolved from a module's string table
	// independently of type information).
	InlineeNames map[uint32]string
}

// New returns a PlainDumper with no known inlinee names.
func New() *PlainDumper {
	return &PlainDumper{InlineeNames: make(map[uint32]string)}
}

// DumpFunctionName implements shared.TypeDumper by returning name
// unchanged; typeIndex is not resolved against any type stream.
func (d *PlainDumper) DumpFunctionName(name string, typeIndex uint32) string {
	return name
}

// DumpInlineeName implements shared.TypeDumper. It looks up inlineeID in
// the known-names map, falling back to a synthetic placeholder so callers
// always get a non-empty label.
func (d *PlainDumper) DumpInlineeName(inlineeID uint32) string {
	if d.InlineeNames != nil {
		if name, ok := d.InlineeNames[inlineeID]; ok {
			return name
		}
	}
	return fmt.Sprintf("inline_%d", inlineeID)
}
