package hw

// L2 cache registers.
const (
	LtcZbcIndex           = 0x0017ea44
	LtcZbcColorClear0     = 0x0017ea48
	LtcZbcDepthClear      = 0x0017ea58
	LtcZbcColorValues     = 4
	LtcCbcCtrl1           = 0x0017e8c8
	LtcCbcCtrl2           = 0x0017e8cc
	LtcCbcCtrl3           = 0x0017e8d0
	LtcCbcParam           = 0x0017e8dc
	LtcTstgSetMgmt        = 0x0017e91c
	Ltc0Lts0CbcCtrl1      = 0x001410c8
	LtcCbcBase            = 0x0017e8d4
	CbcBaseAlignShift     = 11
	CbcMaxComptagLines    = 0x1ffff
	CbcCtrl1ClearActive   = 1 << 2
	CbcCtrl3ClearUpperMax = 0x1ffff
	MaxWaysEvictSingleFbp = 9
)

// LtcZbcColorClear returns color clear value register i.
func LtcZbcColorClear(i int) uint32 { return LtcZbcColorClear0 + uint32(i)*4 }

// LtsCbcCtrl1 returns the per-slice compression control of ltc/slice.
func LtsCbcCtrl1(ltc, slice int) uint32 {
	return Ltc0Lts0CbcCtrl1 + uint32(ltc)*LtcStride + uint32(slice)*LtsStride
}

// CbcParam fields.
func CbcParamComptagsPerCacheline(r uint32) uint32 { return Field(r, 0, 16) }
func CbcParamCachelineSize(r uint32) uint32        { return 512 << Field(r, 24, 4) }
func CbcParamSlicesPerFbp(r uint32) uint32         { return Field(r, 28, 4) }

// CbcParam encodes the compression parameter register.
func CbcParam(comptagsPerLine, cachelineShift, slices uint32) uint32 {
	return (comptagsPerLine & 0xffff) | (cachelineShift&0xf)<<24 | (slices&0xf)<<28
}

// TstgSetMaxWaysEvict replaces max_ways_evict_last in a tstg_set_mgmt word.
func TstgSetMaxWaysEvict(r, v uint32) uint32 { return SetField(r, 16, 5, v) }

// LtcZbcIndexAddress replaces the table index field of an ltc zbc index word.
func LtcZbcIndexAddress(r, v uint32) uint32 { return SetField(r, 0, 4, v) }
