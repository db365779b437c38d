package machosym

import (
	"strings"

	"github.com/val35777/samply/macho"
	"github.com/val35777/samply/shared"
)

// externalAccum collects per-path function-address matches while
// preserving the order paths were first encountered, since object
// references are pushed onto the traversal FIFO in that order (§4.4 step 4
// notes the archive's member map follows "the map insertion order").
type externalAccum struct {
	order  []string
	byPath map[string]shared.FunctionAddresses
}

func newExternalAccum() *externalAccum {
	return &externalAccum{byPath: make(map[string]shared.FunctionAddresses)}
}

func (a *externalAccum) add(path, fn string, aw shared.AddressWithOffset) {
	fa, ok := a.byPath[path]
	if !ok {
		fa = make(shared.FunctionAddresses)
		a.byPath[path] = fa
		a.order = append(a.order, path)
	}
	fa[fn] = append(fa[fn], aw)
}

// effectiveSize reports the span splitLocalAndExternal's two-pointer matcher
// should treat a function as occupying: its recorded size, or exactly one
// byte when the size is unknown (no terminating stab was found), so an
// address matches only the function's exact start.
func effectiveSize(fn macho.ObjectFunction) uint64 {
	if fn.Size == 0 {
		return 1
	}
	return fn.Size
}

// splitLocalAndExternal implements §4.4: it partitions a sorted address-
// pair list into addresses left for local DWARF resolution and addresses
// matched against the object map, grouped into pending object references.
//
// pairs must be sorted by InObject address; om.Functions must be sorted by
// Address (BuildObjectMap guarantees this).
func splitLocalAndExternal(pairs []shared.AddressPair, om *macho.ObjectMap) (internal []shared.AddressPair, refs []shared.ObjectReference) {
	fns := om.Functions
	accum := newExternalAccum()

	i := 0
	for j := 0; j < len(pairs); j++ {
		addr := pairs[j].InObject

		for i < len(fns) && fns[i].Address+effectiveSize(fns[i]) <= addr {
			i++
		}

		if i >= len(fns) || addr < fns[i].Address {
			internal = append(internal, pairs[j])
			continue
		}

		fn := fns[i]
		accum.add(fn.ObjectPath, fn.Name, shared.AddressWithOffset{
			Original: pairs[j].Original,
			Offset:   addr - fn.Address,
		})
	}

	refs = buildReferences(accum)
	return internal, refs
}

// buildReferences groups accumulated per-path matches into object
// references, merging archive members that share an archive path into a
// single reference per §4.4 step 4.
func buildReferences(accum *externalAccum) []shared.ObjectReference {
	var refs []shared.ObjectReference
	archiveIndex := make(map[string]int)

	for _, path := range accum.order {
		fa := accum.byPath[path]
		archivePath, member, isArchive := splitArchiveMember(path)
		if !isArchive {
			refs = append(refs, shared.ObjectReference{Path: path, Functions: fa})
			continue
		}
		if idx, ok := archiveIndex[archivePath]; ok {
			refs[idx].Members[member] = fa
			continue
		}
		archiveIndex[archivePath] = len(refs)
		refs = append(refs, shared.ObjectReference{
			Path:      archivePath,
			IsArchive: true,
			Members:   map[string]shared.FunctionAddresses{member: fa},
		})
	}

	return refs
}

// splitArchiveMember recognizes the "archive.a(member.o)" convention the
// debug map uses to name a function's origin inside a static archive.
func splitArchiveMember(path string) (archivePath, member string, ok bool) {
	open := strings.IndexByte(path, '(')
	if open < 0 || !strings.HasSuffix(path, ")") {
		return "", "", false
	}
	return path[:open], path[open+1 : len(path)-1], true
}
