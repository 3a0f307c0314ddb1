package hw

// Falcon microcontroller bases.
const (
	FecsBase  = 0x00409000
	GpccsBase = 0x0041a000
)

// Falcon register offsets, relative to a falcon base.
const (
	FalconIrqsset  = 0x000
	FalconIrqsclr  = 0x004
	FalconMailbox0 = 0x040
	FalconMailbox1 = 0x044
	FalconCpuctl   = 0x100
	FalconHwcfg    = 0x108
	FalconDmactl   = 0x10c
	FalconImemc    = 0x180
	FalconImemd    = 0x184
	FalconImemt    = 0x188
	FalconDmemc    = 0x1c0
	FalconDmemd    = 0x1c4

	FalconCpuctlStartCPU    = 1 << 1
	FalconDmactlRequireCtx  = 1 << 0
	FalconMemcAutoIncWrite  = 1 << 24
	FalconMemcAutoIncRead   = 1 << 25
	FalconImemBlockBytes    = 256
	FalconImemWordsPerBlock = FalconImemBlockBytes / 4
)

// FalconMemc encodes an IMEM/DMEM control word.
func FalconMemc(offsWords, block uint32, autoInc uint32) uint32 {
	return (offsWords&0x3f)<<2 | (block&0xff)<<8 | autoInc
}

// MemcOffset decodes the byte offset addressed by a control word.
func MemcOffset(r uint32) uint32 {
	return Field(r, 8, 8)*FalconImemBlockBytes + Field(r, 2, 6)*4
}

// HwcfgImemSize returns the IMEM size in 256-byte blocks.
func HwcfgImemSize(r uint32) uint32 { return Field(r, 0, 9) }

// HwcfgDmemSize returns the DMEM size in 256-byte blocks.
func HwcfgDmemSize(r uint32) uint32 { return Field(r, 9, 9) }

// Hwcfg encodes a falcon configuration word.
func Hwcfg(imemBlocks, dmemBlocks uint32) uint32 {
	return (imemBlocks & 0x1ff) | (dmemBlocks&0x1ff)<<9
}

// FECS context-switch interface.
const (
	FecsCtxswMailboxBase      = 0x00409800
	FecsCtxswMailboxClearBase = 0x00409840
	FecsCtxswMailboxCount     = 16
	FecsMethodData            = 0x00409500
	FecsMethodPush            = 0x00409504
	FecsCurrentCtx            = 0x00409b00
	FecsNewCtx                = 0x00409b04
	FecsHostIntEnable         = 0x00409c24
	FecsCtxswResetCtl         = 0x00409614

	CtxswMailboxValuePass = 0x1
	CtxswMailboxValueFail = 0x2

	CurrentCtxValid        = 1 << 31
	CurrentCtxTargetVidMem = 0 << 28
)

// FecsMailbox returns ctxsw mailbox i.
func FecsMailbox(i int) uint32 {
	return FecsCtxswMailboxBase + uint32(i)*4
}

// FecsMailboxClear returns the clear register of ctxsw mailbox i.
func FecsMailboxClear(i int) uint32 {
	return FecsCtxswMailboxClearBase + uint32(i)*4
}

// CurrentCtxPtr extracts the instance block pointer (address >> 12).
func CurrentCtxPtr(r uint32) uint32 { return r & 0x0fffffff }

// CurrentCtx encodes a current-context word for an instance block pointer.
func CurrentCtx(ptr uint32, valid bool) uint32 {
	v := (ptr & 0x0fffffff) | CurrentCtxTargetVidMem
	if valid {
		v |= CurrentCtxValid
	}

	return v
}

// FECS method push addresses.
const (
	MethodBindPointer              = 0x03
	MethodHaltPipeline             = 0x04
	MethodWfiGoldenSave            = 0x09
	MethodDiscoverImageSize        = 0x10
	MethodRestoreGoldenImage       = 0x15
	MethodDiscoverZcullImageSize   = 0x16
	MethodSetWatchdogTimeout       = 0x21
	MethodDiscoverPmImageSize      = 0x25
	MethodDiscoverReglistImageSize = 0x30
	MethodSetReglistBindInstance   = 0x31
	MethodSetReglistVirtualAddress = 0x32
)

// Reset control bits.
const (
	ResetCtlSysEngineResetDisabled  = 1 << 4
	ResetCtlGpcEngineResetDisabled  = 1 << 5
	ResetCtlBeEngineResetDisabled   = 1 << 6
	ResetCtlSysContextResetDisabled = 1 << 8
	ResetCtlGpcContextResetDisabled = 1 << 9
	ResetCtlBeContextResetDisabled  = 1 << 10
)

// Grouped reset control masks.
const (
	ResetCtlEngineResetDisabled  = ResetCtlSysEngineResetDisabled | ResetCtlGpcEngineResetDisabled | ResetCtlBeEngineResetDisabled
	ResetCtlContextResetDisabled = ResetCtlSysContextResetDisabled | ResetCtlGpcContextResetDisabled | ResetCtlBeContextResetDisabled
)

// FECS host interrupt enables.
const (
	HostIntEnableFaultDuringCtxsw    = 1 << 16
	HostIntEnableUmimpFirmwareMethod = 1 << 17
	HostIntEnableUmimpIllegalMethod  = 1 << 18
	HostIntEnableWatchdog            = 1 << 19
)
