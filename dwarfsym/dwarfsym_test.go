package dwarfsym

import (
	"context"
	"fmt"
	"testing"

	"github.com/val35777/samply/shared"
)

type fakeResult struct {
	wantsDebug bool
	added      map[uint32][]shared.Frame
}

func (r *fakeResult) Init(symbols []shared.Symbol, addresses []uint32) {}
func (r *fakeResult) WantsDebugInfo() bool                             { return r.wantsDebug }
func (r *fakeResult) AddDebugInfo(address uint32, frames []shared.Frame) {
	if r.added == nil {
		r.added = make(map[uint32][]shared.Frame)
	}
	r.added[address] = frames
}

type erroringSource struct{}

func (erroringSource) SectionData(name string) ([]byte, error) {
	return nil, fmt.Errorf("no %s section", name)
}

func TestCollectDebugInfoSkipsWhenDebugInfoNotWanted(t *testing.T) {
	res := &fakeResult{wantsDebug: false}
	c := New()
	err := c.CollectDebugInfo(context.Background(), erroringSource{}, []shared.AddressPair{{Original: 1, InObject: 0x100}}, res)
	if err != nil {
		t.Fatalf("CollectDebugInfo: %v", err)
	}
	if len(res.added) != 0 {
		t.Errorf("expected no frames added, got %v", res.added)
	}
}

func TestCollectDebugInfoSkipsWhenNoPairs(t *testing.T) {
	res := &fakeResult{wantsDebug: true}
	c := New()
	err := c.CollectDebugInfo(context.Background(), erroringSource{}, nil, res)
	if err != nil {
		t.Fatalf("CollectDebugInfo: %v", err)
	}
	if len(res.added) != 0 {
		t.Errorf("expected no frames added, got %v", res.added)
	}
}

func TestCollectDebugInfoToleratesUnparsableDWARF(t *testing.T) {
	res := &fakeResult{wantsDebug: true}
	c := New()
	err := c.CollectDebugInfo(context.Background(), erroringSource{}, []shared.AddressPair{{Original: 1, InObject: 0x100}}, res)
	if err != nil {
		t.Fatalf("CollectDebugInfo should not surface a missing-DWARF error, got: %v", err)
	}
	if len(res.added) != 0 {
		t.Errorf("expected no frames added when DWARF fails to load, got %v", res.added)
	}
}
