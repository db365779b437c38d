// Package shared holds the types and interfaces that the Mach-O and PDB
// symbolication engines have in common: the query and result shapes, the
// injected file-access and DWARF-collection interfaces, and the error
// kinds the core can surface. Nothing in this package touches a specific
// binary format.
package shared

import (
	"context"
	"fmt"
)

// ResultKind selects how much work a symbolication call should do.
type ResultKind int

const (
	// SymbolTableOnly returns just the defined-symbol map, never touching
	// external objects or DWARF/line data.
	SymbolTableOnly ResultKind = iota
	// WithDebugInfo additionally resolves every query address to a frame
	// stack (file, line, and inline call chain where available).
	WithDebugInfo
)

// SymbolicationQuery is the input to both engines: which binary (by build
// identifier), which addresses, and how much detail is wanted.
type SymbolicationQuery struct {
	BreakpadID string
	Addresses  []uint32
	Kind       ResultKind
}

// AddressPair couples the RVA a caller asked about with that same
// location's address in the coordinate space of the object currently being
// inspected. They diverge once the root binary's __TEXT vmaddr offset or an
// external object's local rebasing comes into play.
type AddressPair struct {
	Original uint32
	InObject uint64
}

// SortAddressPairs sorts a in place by InObject address,
// matching the invariant the engines maintain while threading a query
// through nested objects.
func SortAddressPairs(a []AddressPair) {
	insertionSortPairs(a)
}

func insertionSortPairs(a []AddressPair) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1].InObject > a[j].InObject; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}

// AddressWithOffset is one address resolved against a named function: the
// original query address plus its byte offset from that function's start.
type AddressWithOffset struct {
	Original uint32
	Offset   uint64
}

// FunctionAddresses maps a raw function name to the addresses matched
// against it, in the order they were recorded.
type FunctionAddresses map[string][]AddressWithOffset

// ObjectReference names one external file the traversal still needs to
// open, along with which of its functions are wanted and by which
// original addresses. A path of the form "archive(member)" (containing
// '(' and ending in ')') names an archive member and is carried in
// Members, keyed by member name; everything else is a plain
// object file carried in Functions.
type ObjectReference struct {
	Path      string
	IsArchive bool
	Functions FunctionAddresses
	Members   map[string]FunctionAddresses
}

// MatchedFunction is the per-function result of matching a sorted address
// list against an object map: which object the function came from, its
// name, and the addresses (with offsets) that landed inside it.
type MatchedFunction struct {
	ObjectIndex int
	Name        string
	Addresses   []AddressWithOffset
}

// Location is a resolved source position. Any field may be zero-valued
// when the underlying debug info did not carry it.
type Location struct {
	File   string
	Line   uint32
	Column uint32
}

// Frame is one entry in a per-address frame stack: a function name and,
// where resolvable, its source location. Index 0 in a frame stack is the
// outermost (containing) procedure; the last entry is the innermost
// inlined call.
type Frame struct {
	Function string
	Location *Location
}

// Symbol is one defined function from a symbol table: its address, size,
// and name.
type Symbol struct {
	Address uint32
	Size    uint32
	Name    string
}

// SymbolicationResult accumulates the output of a query. Init is called
// once with the full symbol map and the query's address list; AddDebugInfo
// is then called zero or more times, once per address that resolves to a
// non-empty frame stack. When WantsDebugInfo reports false, the Mach-O
// engine returns right after Init and AddDebugInfo is never called.
type SymbolicationResult interface {
	Init(symbols []Symbol, addresses []uint32)
	WantsDebugInfo() bool
	AddDebugInfo(address uint32, frames []Frame)
}

// ByteRange is a sub-rangeable random-access byte source: the "byte
// reader" interface of the external-interfaces section. Implementations
// back onto an open file, a memory-mapped region, or a network fetch.
type ByteRange interface {
	ReadBytesAt(offset, length int64) ([]byte, error)
	SubRange(offset, length int64) ByteRange
	Len() int64
}

// FileAndPathHelper resolves a filesystem path to a ByteRange. It is the
// one suspension point in the Mach-O traversal: file opens happen one at a
// time, strictly in FIFO order.
type FileAndPathHelper interface {
	OpenFile(ctx context.Context, path string) (ByteRange, error)
}

// DWARFCollector resolves addresses local to one object (addresses the
// object map did not route elsewhere) against that object's own DWARF
// data, writing results directly into res.
type DWARFCollector interface {
	CollectDebugInfo(ctx context.Context, obj DWARFSource, pairs []AddressPair, res SymbolicationResult) error
}

// DWARFSource is the minimal surface a DWARF collector needs from a parsed
// object: the raw bytes of any named section, so that callers outside this module's macho package
// (e.g. a dwarf.Data consumer) don't need to import it directly.
type DWARFSource interface {
	SectionData(name string) ([]byte, error)
}

// TypeDumper formats a function name and an associated type or inlinee
// index into a human-readable signature, e.g. turning a raw PDB type
// index into "int foo(char const*)". The core never inspects type records
// itself; it only asks for a rendered string.
type TypeDumper interface {
	DumpFunctionName(name string, typeIndex uint32) string
	DumpInlineeName(inlineeID uint32) string
}

// ErrorKind discriminates the SymbolicationError variants from §7 of the
// design: which stage of the engine failed and whether the failure is a
// hard error or (for open failures on auxiliary files) something the
// engine is expected to tolerate upstream of constructing this type.
type ErrorKind int

const (
	NoMatchMultiArch ErrorKind = iota
	UnmatchedBuildID
	MachOHeaderParseError
	ArchiveParseError
	InvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case NoMatchMultiArch:
		return "NoMatchMultiArch"
	case UnmatchedBuildID:
		return "UnmatchedBuildId"
	case MachOHeaderParseError:
		return "MachOHeaderParseError"
	case ArchiveParseError:
		return "ArchiveParseError"
	case InvalidInput:
		return "InvalidInput"
	default:
		return "Unknown"
	}
}

// SymbolicationError is the error type returned across the symbolication
// core's public entry points.
type SymbolicationError struct {
	Kind    ErrorKind
	Message string
	Path    string
	Err     error

	// ObservedBuildIDs and ParseErrors are populated only for
	// NoMatchMultiArch, preserved for diagnostics even though the call
	// ultimately fails.
	ObservedBuildIDs []string
	ParseErrors      []error
}

func (e *SymbolicationError) Error() string {
	switch e.Kind {
	case NoMatchMultiArch:
		return fmt.Sprintf("no matching architecture slice; observed build ids: %v", e.ObservedBuildIDs)
	case UnmatchedBuildID:
		return fmt.Sprintf("unmatched build id: %s", e.Message)
	case MachOHeaderParseError:
		return fmt.Sprintf("mach-o header parse error: %v", e.Err)
	case ArchiveParseError:
		return fmt.Sprintf("archive parse error for %s: %v", e.Path, e.Err)
	case InvalidInput:
		return fmt.Sprintf("invalid input: %s", e.Message)
	default:
		return e.Message
	}
}

func (e *SymbolicationError) Unwrap() error { return e.Err }
