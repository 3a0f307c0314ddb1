package hw

// Master control.
const (
	McEnable        = 0x00000200
	McEnablePgraph  = 1 << 12
	McEnableBlg     = 1 << 27
	McEnablePerfmon = 1 << 28
)

// Host FIFO registers the engine touches.
const (
	FifoEngineStatusBase         = 0x00002640
	FifoEngineStatusCtxswPending = 1 << 15

	PbdmaMethod0Base = 0x000400c0
	PbdmaData0Base   = 0x000400c4
	PbdmaUdmaNop     = 0x8
)

// FifoEngineStatus returns the status register of engine id.
func FifoEngineStatus(id int) uint32 {
	return FifoEngineStatusBase + uint32(id)*8
}

// PbdmaMethod0 returns the first method slot of pbdma id.
func PbdmaMethod0(id int) uint32 {
	return PbdmaMethod0Base + uint32(id)*PbdmaStride
}

// PbdmaData0 returns the first data slot of pbdma id.
func PbdmaData0(id int) uint32 {
	return PbdmaData0Base + uint32(id)*PbdmaStride
}

// Capability registers.
const (
	TopNumGpcs      = 0x00022430
	TopTpcPerGpc    = 0x00022434
	TopNumFbps      = 0x00022438
	RingEnumFbp     = 0x00120074
	RingEnumGpc     = 0x00120078
	Gpc0FsGpc       = 0x00502608
	Gpc0PesTpcMask0 = 0x00500c30
)

// Gpc0FsGpc fields.
func FsGpcNumTpcs(r uint32) uint32   { return Field(r, 0, 5) }
func FsGpcNumZculls(r uint32) uint32 { return Field(r, 16, 5) }

// FsGpc encodes a gpc floorsweep status word.
func FsGpc(tpcs, zculls uint32) uint32 {
	return (tpcs & 0x1f) | (zculls&0x1f)<<16
}

// PesTpcMask returns the pes-to-tpc mask register for pes in gpc.
func PesTpcMask(gpc, pes int) uint32 {
	return Gpc0PesTpcMask0 + GpcOffset(gpc) + uint32(pes)*4
}

// Thermal / clock gating.
const (
	ThermGateCtrlBase     = 0x00020200
	ThermFecsIdleFilter   = 0x00020288
	ThermHubmmuIdleFilter = 0x0002028c

	GateCtrlEngClkRun  = 0
	GateCtrlEngClkAuto = 1
	GateCtrlEngClkStop = 2
	GateCtrlEngPwrAuto = 1
	IdleFilterExpInit  = 9
	IdleFilterMantInit = 2
)

// ThermGateCtrl returns the clock gate control of engine id.
func ThermGateCtrl(id int) uint32 {
	return ThermGateCtrlBase + uint32(id)*4
}

// GateCtrl fields.
func GateCtrlEngClk(r, mode uint32) uint32    { return SetField(r, 0, 2, mode) }
func GateCtrlIdleFiltExp(r, v uint32) uint32  { return SetField(r, 8, 5, v) }
func GateCtrlIdleFiltMant(r, v uint32) uint32 { return SetField(r, 13, 3, v) }
func GateCtrlDelayAfter(r, v uint32) uint32   { return SetField(r, 20, 4, v) }
func GateCtrlEngClkValue(r uint32) uint32     { return Field(r, 0, 2) }
func GateCtrlEngPwr(r, v uint32) uint32       { return SetField(r, 4, 2, v) }

// IdleFilterValue replaces the value field of an idle filter register.
func IdleFilterValue(r, v uint32) uint32 { return SetField(r, 0, 8, v) }

// Count fields of the capability registers.
func TopValue(r uint32) uint32        { return Field(r, 0, 5) }
func RingEnumCount(r uint32) uint32   { return Field(r, 0, 5) }
func PesTpcMaskValue(r uint32) uint32 { return Field(r, 0, 8) }
