package hw

// Object classes.
const (
	KeplerC               = 0xa297
	FermiTwodA            = 0x902d
	KeplerComputeA        = 0xa0c0
	KeplerInlineToMemoryA = 0xa040
	KeplerDMACopyA        = 0xa0b5
)

// Methods handled in software (byte offsets).
const (
	MethodSetAlphaCircularBufferSize = 0x02dc
	MethodSetCircularBufferSize      = 0x1280
	MethodSetShaderExceptions        = 0x1528
)

// Cyclestats shared buffer layout. Each element starts with a header word
// holding the operation in the low half and the element size in bytes in the
// high half.
const (
	CycleStatsOpBar0Read32  = 0x0
	CycleStatsOpBar0Write32 = 0x1
	CycleStatsOpEnd         = 0x1f

	CycleStatsHeader    = 0x00
	CycleStatsCompleted = 0x04
	CycleStatsFailed    = 0x08
	CycleStatsOffset    = 0x0c
	CycleStatsBits      = 0x10
	CycleStatsData      = 0x14
	CycleStatsElemBytes = 0x20
	CycleStatsHdrBytes  = 0x0c
)

// CycleStatsHeaderWord encodes an element header.
func CycleStatsHeaderWord(op, size uint32) uint32 {
	return (op & 0xffff) | (size&0xffff)<<16
}

// CycleStatsBitsWord encodes the bit range of a peek/poke.
func CycleStatsBitsWord(first, last uint32) uint32 {
	return (first & 0xff) | (last&0xff)<<8
}
