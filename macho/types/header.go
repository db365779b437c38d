package types

import "fmt"

// A FileHeader represents a Mach-O file header.
type FileHeader struct {
	Magic        Magic
	CPU          CPU
	SubCPU       CPUSubtype
	Type         HeaderFileType
	NCommands    uint32
	SizeCommands uint32
	Flags        HeaderFlag
	Reserved     uint32
}

const (
	FileHeaderSize32 = 7 * 4
	FileHeaderSize64 = 8 * 4
)

type Magic uint32

const (
	Magic32  Magic = 0xfeedface
	Magic64  Magic = 0xfeedfacf
	MagicFat Magic = 0xcafebabe
)

var magicStrings = []IntName{
	{uint32(Magic32), "32-bit MachO"},
	{uint32(Magic64), "64-bit MachO"},
	{uint32(MagicFat), "Fat MachO"},
}

func (i Magic) String() string { return StringName(uint32(i), magicStrings, false) }

// A HeaderFileType is the Mach-O file type, e.g. an object file, executable, or dynamic library.
type HeaderFileType uint32

const (
	MH_OBJECT  HeaderFileType = 0x1 // relocatable object file
	MH_EXECUTE HeaderFileType = 0x2 // demand paged executable file
	MH_DYLIB   HeaderFileType = 0x6 // dynamically bound shared library
	MH_BUNDLE  HeaderFileType = 0x8 // dynamically bound bundle file
	MH_DSYM    HeaderFileType = 0xa // companion file with only debug sections
)

var fileTypeStrings = []IntName{
	{uint32(MH_OBJECT), "OBJECT"},
	{uint32(MH_EXECUTE), "EXECUTE"},
	{uint32(MH_DYLIB), "DYLIB"},
	{uint32(MH_BUNDLE), "BUNDLE"},
	{uint32(MH_DSYM), "DSYM"},
}

func (t HeaderFileType) String() string { return StringName(uint32(t), fileTypeStrings, false) }

type HeaderFlag uint32

func (h FileHeader) String() string {
	return fmt.Sprintf("Magic = %s, Type = %s, CPU = %s/%s, Commands = %d (Size: %d)",
		h.Magic, h.Type, h.CPU, h.SubCPU.String(h.CPU), h.NCommands, h.SizeCommands)
}
