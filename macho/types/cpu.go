package types

// A CPU is a Mach-O cpu type.
type CPU uint32

const (
	cpuArchMask = 0xff000000 // mask for architecture bits
	cpuArch64   = 0x01000000 // 64 bit ABI
)

const (
	CPU386   CPU = 7
	CPUAmd64 CPU = CPU386 | cpuArch64
	CPUArm   CPU = 12
	CPUArm64 CPU = CPUArm | cpuArch64
	CPUPpc   CPU = 18
	CPUPpc64 CPU = CPUPpc | cpuArch64
)

var cpuStrings = []IntName{
	{uint32(CPU386), "i386"},
	{uint32(CPUAmd64), "x86_64"},
	{uint32(CPUArm), "ARM"},
	{uint32(CPUArm64), "ARM64"},
	{uint32(CPUPpc), "PowerPC"},
	{uint32(CPUPpc64), "PowerPC64"},
}

func (i CPU) String() string { return StringName(uint32(i), cpuStrings, false) }

type CPUSubtype uint32

const (
	CPUSubtypeX8664All CPUSubtype = 3
	CPUSubtypeArmAll    CPUSubtype = 0
	CPUSubtypeArmV7     CPUSubtype = 9
	CPUSubtypeArm64All  CPUSubtype = 0
	CPUSubtypeArm64E    CPUSubtype = 2
)

// String renders the subtype name for the given cpu type. Unknown
// combinations fall back to a generic label; this is display-only and
// never affects slice selection.
func (st CPUSubtype) String(cpu CPU) string {
	switch cpu {
	case CPUAmd64:
		if st&0xff == CPUSubtypeX8664All {
			return "x86_64-all"
		}
	case CPUArm64:
		if st&0xff == CPUSubtypeArm64E {
			return "arm64e"
		}
		return "arm64-all"
	case CPUArm:
		return "arm"
	}
	return "unknown"
}
