package macho

import (
	"strings"

	"github.com/val35777/samply/macho/types"
)

// ObjectFunction is one function contributed to the linked image by an
// external object file, as recorded in the STABS debug map.
type ObjectFunction struct {
	// Name is the function's raw symbol name with the ":F(...)" stab type
	// suffix the linker appends stripped off; it is not demangled.
	Name string
	// ObjectPath is the N_OSO string that named the function's source
	// object: a plain path ("/tmp/a.o") or, for a static-archive member,
	// "path/to/lib.a(member.o)".
	ObjectPath string
	Address    uint64
	// Size is the function's length in the linked image. It is read from
	// the terminating (nameless) N_FUN stab that follows the function's
	// body; functions missing a terminator (the object was built by a
	// toolchain that omits it) get a Size of 0 and match only the exact
	// start address.
	Size uint64
}

// ObjectMap is the STABS-derived table the linker leaves behind: every
// externally-contributed function's address range and the source object
// it came from, sorted by address so the engine can intersect it against
// a sorted query-address list with a linear two-pointer scan.
type ObjectMap struct {
	Functions []ObjectFunction
}

// BuildObjectMap reconstructs the object map from the STABS entries in the
// symbol table. The debug map convention (shared by dsymutil, ld64, and
// the STABS-reading side of most linkers) pairs two N_FUN stabs per
// function: the first names it and gives its start address, the second is
// nameless and carries the function's size as its value.
func (f *File) BuildObjectMap() *ObjectMap {
	om := &ObjectMap{}
	if f.Symtab == nil {
		return om
	}

	var curOSO string
	var pending *ObjectFunction

	flush := func(size uint64) {
		if pending == nil {
			return
		}
		pending.Size = size
		om.Functions = append(om.Functions, *pending)
		pending = nil
	}

	for _, sym := range f.Symtab.Syms {
		if !sym.Type.IsStab() {
			continue
		}
		switch sym.Type {
		case types.NOso:
			flush(0)
			curOSO = sym.Name
		case types.NFun:
			if sym.Name == "" {
				// Terminator: closes out the pending function with its size.
				flush(sym.Value)
				continue
			}
			// A new function opens; any still-pending one (no terminator
			// seen) is flushed with an unknown size.
			flush(0)
			if curOSO == "" {
				continue
			}
			name := sym.Name
			if i := strings.IndexByte(name, ':'); i >= 0 {
				name = name[:i]
			}
			pending = &ObjectFunction{Name: name, ObjectPath: curOSO, Address: sym.Value}
		}
	}
	flush(0)

	insertionSortFunctions(om.Functions)
	return om
}

func insertionSortFunctions(fns []ObjectFunction) {
	for i := 1; i < len(fns); i++ {
		for j := i; j > 0 && fns[j-1].Address > fns[j].Address; j-- {
			fns[j-1], fns[j] = fns[j], fns[j-1]
		}
	}
}
