package machosym

import (
	"reflect"
	"testing"

	"github.com/val35777/samply/shared"
)

// TestSeedAddressPairsAppliesTextVmaddr is spec scenario 2: given a __TEXT
// vmaddr of 0x100000000 and query addresses [0x1000, 0x2000], the seeded
// pairs apply that offset to every address's object-space address while
// leaving the original address untouched.
func TestSeedAddressPairsAppliesTextVmaddr(t *testing.T) {
	got := seedAddressPairs([]uint32{0x1000, 0x2000}, 0x100000000)
	want := []shared.AddressPair{
		{Original: 0x1000, InObject: 0x100001000},
		{Original: 0x2000, InObject: 0x100002000},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("seedAddressPairs() = %+v, want %+v", got, want)
	}
}

func TestSeedAddressPairsZeroVmaddrFallback(t *testing.T) {
	got := seedAddressPairs([]uint32{0x42}, 0)
	want := []shared.AddressPair{{Original: 0x42, InObject: 0x42}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("seedAddressPairs() = %+v, want %+v", got, want)
	}
}
