// Package hw holds the register map of the gk20a graphics engine: register
// offsets, unit strides, field encoders and the layout of the context image
// and instance block.
package hw

// Unit strides and litter values.
const (
	GpcStride        = 0x8000
	TpcInGpcBase     = 0x4000
	TpcInGpcStride   = 0x800
	PpcInGpcBase     = 0x3000
	PpcInGpcStride   = 0x200
	LtcStride        = 0x2000
	LtsStride        = 0x400
	PesPerGpc        = 2
	MaxGpcs          = 32
	MaxTpcPerGpc     = 8
	MaxZcullPerGpc   = 8
	Bar0Size         = 0x1000000
	InstBlockSize    = 0x1000
	InstBlockShift   = 12
	PbdmaStride      = 0x2000
	GrEngineID       = 0
	ZbcTableSize     = 16
	ZbcTableStart    = 1
	AlphaBetaRows    = 32
	AlphaRatioTables = 256
	TpcPerPes        = 2
	Ce2EngineID      = 1
	ScalNumGpcs      = 1
)

// GpcOffset returns the register offset of gpc relative to gpc 0.
func GpcOffset(gpc int) uint32 {
	return uint32(gpc) * GpcStride
}

// TpcOffset returns the register offset of tpc in gpc relative to gpc0/tpc0.
func TpcOffset(gpc, tpc int) uint32 {
	return GpcOffset(gpc) + uint32(tpc)*TpcInGpcStride
}

// PpcOffset returns the register offset of ppc in gpc relative to gpc0/ppc0.
func PpcOffset(gpc, ppc int) uint32 {
	return GpcOffset(gpc) + uint32(ppc)*PpcInGpcStride
}

// Field extracts width bits of r starting at shift.
func Field(r uint32, shift, width uint) uint32 {
	return (r >> shift) & (1<<width - 1)
}

// SetField returns r with width bits at shift replaced by v.
func SetField(r uint32, shift, width uint, v uint32) uint32 {
	mask := uint32(1<<width-1) << shift
	return (r &^ mask) | ((v << shift) & mask)
}
