package machosym

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/val35777/samply/macho"
	"github.com/val35777/samply/shared"
)

func naiveMatch(addr uint64, fns []macho.ObjectFunction) (macho.ObjectFunction, bool) {
	for _, fn := range fns {
		size := effectiveSize(fn)
		if addr >= fn.Address && addr < fn.Address+size {
			return fn, true
		}
	}
	return macho.ObjectFunction{}, false
}

func TestSplitLocalAndExternalMatchesNaiveSearch(t *testing.T) {
	fns := []macho.ObjectFunction{
		{Name: "foo", ObjectPath: "a.o", Address: 0x1000, Size: 0x20},
		{Name: "bar", ObjectPath: "a.o", Address: 0x1020, Size: 0x10},
		{Name: "baz", ObjectPath: "b.o", Address: 0x2000, Size: 0}, // no terminator
	}
	om := &macho.ObjectMap{Functions: fns}

	addrs := []uint64{0x0ff0, 0x1000, 0x1010, 0x1020, 0x1035, 0x1fff, 0x2000, 0x2001}
	pairs := make([]shared.AddressPair, len(addrs))
	for i, a := range addrs {
		pairs[i] = shared.AddressPair{Original: uint32(i), InObject: a}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].InObject < pairs[j].InObject })

	internal, refs := splitLocalAndExternal(pairs, om)

	matched := make(map[uint32]string)
	for _, ref := range refs {
		for fn, aws := range ref.Functions {
			for _, aw := range aws {
				matched[aw.Original] = fn
			}
		}
	}

	for _, p := range pairs {
		want, ok := naiveMatch(p.InObject, fns)
		if !ok {
			found := false
			for _, ip := range internal {
				if ip.Original == p.Original {
					found = true
				}
			}
			if !found {
				t.Errorf("address %#x: expected internal, not found there", p.InObject)
			}
			continue
		}
		got, ok := matched[p.Original]
		if !ok || got != want.Name {
			t.Errorf("address %#x: expected match %q, got %q (ok=%v)", p.InObject, want.Name, got, ok)
		}
	}
}

type archiveMemberResult struct {
	Archive, Member string
	OK              bool
}

func TestSplitArchiveMember(t *testing.T) {
	cases := []struct {
		in   string
		want archiveMemberResult
	}{
		{"libfoo.a(bar.o)", archiveMemberResult{"libfoo.a", "bar.o", true}},
		{"baz.o", archiveMemberResult{"", "", false}},
		{"/tmp/libfoo.a(bar.o)", archiveMemberResult{"/tmp/libfoo.a", "bar.o", true}},
	}
	for _, c := range cases {
		archive, member, ok := splitArchiveMember(c.in)
		got := archiveMemberResult{archive, member, ok}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("splitArchiveMember(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}
