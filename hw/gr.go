package hw

// Graphics engine status, interrupt and exception registers.
const (
	GrIntr               = 0x00400100
	GrIntrNotify         = 1 << 0
	GrIntrSemaphore      = 1 << 1
	GrIntrIllegalMethod  = 1 << 4
	GrIntrIllegalClass   = 1 << 5
	GrIntrIllegalNotify  = 1 << 6
	GrIntrFecsError      = 1 << 19
	GrIntrClassError     = 1 << 20
	GrIntrException      = 1 << 21
	GrException          = 0x00400108
	GrExceptionFe        = 1 << 0
	GrException1En       = 0x00400130
	GrException2En       = 0x00400134
	GrExceptionEn        = 0x00400138
	GrIntrEn             = 0x0040013c
	GrClassError         = 0x00400110
	GrGpfifoCtl          = 0x00400500
	GrGpfifoCtlAccess    = 1 << 0
	GrGpfifoCtlSemaphore = 1 << 16
	GrEngineStatus       = 0x0040060c
	GrEngineStatusBusy   = 1 << 0
	GrTrappedAddr        = 0x00400704
	GrTrappedDataLo      = 0x00400708
	GrTrappedDataHi      = 0x0040070c
	GrFeHwwEsr           = 0x00404000
	GrFeHwwEsrReset      = 1 << 30
	GrFeHwwEsrEn         = 1 << 31
	GrFeObjectTableBase  = 0x00404200
	GrFePwrMode          = 0x00404170
	GrFePwrModeAuto      = 0x0
	GrFePwrModeForceOn   = 0x2
	GrFePwrModeReqSend   = 1 << 4
	GrSccInit            = 0x0040802c
	GrSccInitRAMTrigger  = 1 << 0
	GrPipeBundleAddress  = 0x00400200
	GrPipeBundleData     = 0x00400204
	GrPipeBundleConfig   = 0x00400208
	GrBundleOverride     = 1 << 31
	GrMmeShadowRawIndex  = 0x00404490
	GrMmeShadowRawData   = 0x00404488
	GrMmeShadowRawWrite  = 1 << 31
	GoIdleBundle         = 0x0000e100
	GrFeGoIdleTimeout    = 0x00404154
	GrFeGoIdleDisabled   = 0x0
	GrFePwrModeReqMask   = 1 << 4
	GrStatus             = 0x00400700
	GrException1         = 0x00400118
	GrException2         = 0x0040011c
)

// PipeBundleAddressValue extracts the bundle address of a bundle init entry.
func PipeBundleAddressValue(r uint32) uint32 { return Field(r, 0, 16) }

// TrappedAddrMethod extracts the trapped method offset (in words).
func TrappedAddrMethod(r uint32) uint32 { return Field(r, 2, 12) }

// TrappedAddrSubch extracts the trapped subchannel.
func TrappedAddrSubch(r uint32) uint32 { return Field(r, 16, 3) }

// TrappedAddr encodes a trapped address word.
func TrappedAddr(method, subch uint32) uint32 {
	return (method&0xfff)<<2 | (subch&0x7)<<16
}

// FeObjectTable returns the object table entry of subchannel subch.
func FeObjectTable(subch uint32) uint32 {
	return GrFeObjectTableBase + subch*4
}

// ObjectTableClass extracts the class number of an object table entry.
func ObjectTableClass(r uint32) uint32 { return Field(r, 0, 16) }

// Global context buffer programming.
const (
	GrSccBundleCbBase      = 0x00408004
	GrSccBundleCbSize      = 0x00408008
	GrSccPagepoolBase      = 0x0040800c
	GrSccPagepool          = 0x00408010
	GrGpcsGccPagepoolBase  = 0x00419004
	GrGpcsGccPagepool      = 0x00419008
	GrPdPagepool           = 0x004068cc
	GrGpcsSetupBundleBase  = 0x00418808
	GrGpcsSetupBundleSize  = 0x0041880c
	GrGpcsSetupAttribBase  = 0x00418810
	GrGpcsTpcsPePinCbBase  = 0x00419848
	GrPdAbDistCfg0         = 0x004064c0
	GrPdAbDistCfg1         = 0x004064c4
	GrPdAbDistCfg2         = 0x004064c8
	GrDsTgaConstraintLogic = 0x00405830
	Gpc0Ppc0CbmCfg         = 0x00503000
	Gpc0Ppc0CbmCfg2        = 0x00503018

	ValidTrue = 1 << 31

	PagepoolBaseAlignBits     = 8
	BundleCbBaseAlignBits     = 8
	AttribCbBaseAlignBits     = 12
	PagepoolByteGranularity   = 0x100
	PagepoolHwmaxValue        = 0x80
	PagepoolHwmax             = 0x0
	BundleCbByteGranularity   = 0x100
	BundleCbSizeProd          = 0x18
	StateLimitBundleGran      = 0x20
	StateLimitMinGpmFifoDepth = 0x100
	TokenLimitInit            = 0x100
	MaxOutputGranularity      = 0x80
	MaxBatchesInit            = 0xffff
	CbmCfgSizeGranularity     = 0x20
	CbmCfgSizeDefault         = 0x320
	CbmCfg2SizeGranularity    = 0x20
	CbmCfg2SizeDefault        = 0x100
	TimesliceEnable           = 1 << 31
)

// Field encoders for the circular buffer manager.
func TotalPages(v uint32) uint32               { return v & 0xff }
func ConstraintBetaCbsize(r, v uint32) uint32  { return SetField(r, 16, 12, v) }
func ConstraintAlphaCbsize(r, v uint32) uint32 { return SetField(r, 0, 12, v) }
func AbDistCfg1(maxOutput uint32) uint32 {
	return MaxBatchesInit | AbDistCfg1MaxOutput(maxOutput)
}

// AbDistCfg1MaxOutput encodes only the max output field, leaving max batches
// at zero.
func AbDistCfg1MaxOutput(maxOutput uint32) uint32 {
	return (maxOutput & 0x7ff) << 16
}

func AbDistCfg2(tokenLimit, stateLimit uint32) uint32 {
	return (tokenLimit & 0xfff) | (stateLimit&0xfff)<<16
}

// CbmCfg fields.
func CbmCfgStartOffset(r uint32) uint32       { return Field(r, 0, 16) }
func CbmCfgSetStartOffset(r, v uint32) uint32 { return SetField(r, 0, 16, v) }
func CbmCfgSize(r uint32) uint32              { return Field(r, 16, 12) }
func CbmCfgSetSize(r, v uint32) uint32        { return SetField(r, 16, 12, v) }
func CbmCfgTimeslice(r uint32) uint32         { return Field(r, 28, 1) }
func CbmCfg(start, size, timeslice uint32) uint32 {
	return CbmCfgSetSize(CbmCfgSetStartOffset(timeslice&1<<28, start), size)
}

// Timeslice related debug registers.
const (
	GrGpcsGpmPdCfg          = 0x00418c64
	GrGpcsTpcsPeVaf         = 0x0041980c
	GrGpcsTpcsPesVscVpc     = 0x0041be08
	GrDsDebug               = 0x00405800
	GrGpcsTpcsMpcVtgDebug   = 0x00419c00
	GpmPdCfgTimesliceEnable = 1 << 8
	PeVafFastModeSwitch     = 1 << 4
	PesVscVpcFastModeSwitch = 1 << 2
	DsDebugTimesliceEnable  = 1 << 27
	MpcVtgTimesliceEnable   = 1 << 3
)

// Tile and distribution tables.
const (
	GrCrstrMapTableCfg      = 0x00418bb8
	GrCrstrGpcMap0          = 0x00418b08
	GrWwdxMapGpcMap0        = 0x0041bf00
	GrWwdxMapTableCfg       = 0x0041bfd0
	GrWwdxMapTableCfg2      = 0x0041bfd4
	GrWwdxSmNumRcp          = 0x0041bfd8
	GrRstr2dGpcMap0         = 0x0040780c
	GrRstr2dMapTableCfg     = 0x004078bc
	GrPdNumTpcPerGpc0       = 0x00406028
	GrPdAlphaRatioTable0    = 0x00406800
	GrPdBetaRatioTable0     = 0x00406c00
	GrPdDistSkipTable0      = 0x004064d0
	GrCwdFs                 = 0x00405b00
	GrBesZropSettings       = 0x00408850
	GrBesCropSettings       = 0x00408958
	GrZcullSmInGpcNumberMap = 0x00418980
	MapRegs                 = 6
	TilesPerMapReg          = 6
)

// Map registers hold six 5-bit tile fields.
func MapTile(n int, v uint32) uint32 { return (v & 0x1f) << (5 * uint(n)) }

// MapTableCfg encodes crstr and rstr2d table configuration.
func MapTableCfg(rowOffset, numEntries uint32) uint32 {
	return (rowOffset & 0xff) | (numEntries&0xff)<<8
}

// WwdxMapTableCfg encodes the wwdx table configuration.
func WwdxMapTableCfg(rowOffset, numEntries, normEntries, normShift, coeff5 uint32) uint32 {
	return (rowOffset & 0xff) | (numEntries&0xff)<<8 | (normEntries&0x1f)<<16 |
		(normShift&0x7)<<21 | (coeff5&0xff)<<24
}

// WwdxMapTableCfg2 packs coefficient modulus values for 2^6 .. 2^11.
func WwdxMapTableCfg2(coeff [6]uint32) uint32 {
	var v uint32
	for i, c := range coeff {
		v |= (c & 0x1f) << (5 * uint(i))
	}

	return v
}

// RatioTableGpc packs a mask into the slot of gpc within a ratio table word.
func RatioTableGpc(gpc int, mask uint32) uint32 {
	return (mask & 0xff) << (8 * uint(gpc%4))
}

// NumTpcPerGpc packs a count into the slot of gpc within a register.
func NumTpcPerGpc(gpc int, count uint32) uint32 {
	return (count & 0xf) << (4 * uint(gpc%8))
}

// CwdFs encodes gpc and tpc counts.
func CwdFs(gpcs, tpcs uint32) uint32 { return (gpcs & 0xff) | (tpcs&0xff)<<8 }

// Per-tpc and per-gpc floorsweep registers.
const (
	Gpc0Tpc0SmCfg       = 0x00504698
	Gpc0Tpc0L1cCfgSmid  = 0x00504088
	Gpc0Tpc0PeCfgSmid   = 0x00504188
	Gpc0GpmPdSmID0      = 0x00500c10
	Gpc0GpmPdActiveTpcs = 0x00500c08
	Gpc0GpmSdActiveTpcs = 0x00500c8c
	GrDsNumTpcPerGpc0   = 0x00405870
	NumTpcPerGpcRegs    = 4
	DistSkipTableRegs   = 8
)

// Gpc0GpmPdSmID returns the sm id register of tpc in gpc 0.
func Gpc0GpmPdSmID(tpc int) uint32 {
	return Gpc0GpmPdSmID0 + uint32(tpc)*4
}

// SmID encodes an sm id field.
func SmID(v uint32) uint32 { return v & 0xffff }

// ActiveTpcs encodes an active tpc count field.
func ActiveTpcs(n uint32) uint32 { return n & 0xf }

// DistSkipTableGpc packs the skip mask of gpc into its slot of a skip table
// register.
func DistSkipTableGpc(gpc int, mask uint32) uint32 {
	return (mask & 0xff) << (8 * uint(gpc%4))
}

// ZropCropActiveFbps encodes the active fbp count of the zrop and crop
// settings registers.
func ZropCropActiveFbps(n uint32) uint32 { return n & 0xf }

// Zcull.
const (
	Gpc0ZcullFs            = 0x00500910
	Gpc0ZcullRAMAddr       = 0x00500914
	Gpc0ZcullSmNumRcp      = 0x00500918
	Gpc0ZcullTotalRAMSize  = 0x00500920
	ZcullTilesPerHypertile = 0x1
	ZcullSmNumRcpMax       = 0x800000
	ZcullBytesPerAliquot   = 0x20
	ZcullHeaderBytesPerGpc = 0x20
	ZcullSubregionHdrBytes = 0xc0
	ZcullSubregionWidthMul = 0x10
	ZcullSubregionHeight   = 0x40
	ZcullSubregionQty      = 0x10
)

// ZcullFs encodes zcull floorsweep settings.
func ZcullFs(numSms, banks uint32) uint32 { return (numSms & 0x1ff) | (banks&0x7)<<16 }

// ZcullRAMAddr encodes the zcull ram layout.
func ZcullRAMAddr(rowOffset, tilesPerRow uint32) uint32 {
	return (tilesPerRow & 0xf) | (rowOffset&0xf)<<8
}

// ZcullTotalRAMAliquots extracts the aliquot count of the zcull ram.
func ZcullTotalRAMAliquots(r uint32) uint32 { return Field(r, 0, 16) }

// ZcullSmInGpcNumberMap returns zcull bank map register i.
func ZcullSmInGpcNumberMap(i int) uint32 {
	return GrZcullSmInGpcNumberMap + uint32(i)*4
}

// ZcullTile packs an 8-tile-per-register zcull bank map field.
func ZcullTile(n int, v uint32) uint32 { return (v & 0xf) << (4 * uint(n%8)) }

// ZBC in the data stream unit.
const (
	GrDsZbcColorR       = 0x00405804
	GrDsZbcColorG       = 0x00405808
	GrDsZbcColorB       = 0x0040580c
	GrDsZbcColorA       = 0x00405810
	GrDsZbcColorFmt     = 0x00405814
	GrDsZbcZ            = 0x00405818
	GrDsZbcZFmt         = 0x0040581c
	GrDsZbcTblIndex     = 0x00405820
	GrDsZbcTblLd        = 0x00405824
	ZbcTblLdSelectC     = 0x0
	ZbcTblLdSelectZ     = 0x1
	ZbcTblLdWrite       = 0x0
	ZbcTblLdTrigger     = 0x4
	ZbcColorFmtInvalid  = 0x0
	ZbcColorFmtZero     = 0x1
	ZbcColorFmtUnorm1   = 0x2
	ZbcColorFmtRf32     = 0x4
	ZbcColorFmtA8B8G8R8 = 0x28
	ZbcZFmtInvalid      = 0x0
	ZbcZFmtFp32         = 0x1
)

// Shader exception report masks.
const (
	GrGpcsTpcsSmHwwWarpEsrReportMask   = 0x00419e44
	GrGpcsTpcsSmHwwGlobalEsrReportMask = 0x00419e4c
)
