package hw

// Context image layout.
const (
	CtxHeaderBytes       = 0x100
	CtxPatchCount        = 0x10
	CtxPatchAdrLo        = 0x14
	CtxPatchAdrHi        = 0x18
	CtxZcull             = 0x1c
	CtxZcullPtr          = 0x20
	CtxPm                = 0x28
	CtxPmPtr             = 0x2c
	CtxNumSaveOps        = 0xf4
	CtxNumRestoreOps     = 0xf8
	CtxZcullModeNoCtxsw  = 0x1
	CtxZcullModeSeparate = 0x2
	CtxPmModeMask        = 0x7
	CtxPmModeNoCtxsw     = 0x0
)

// Instance block layout (byte offsets).
const (
	InstGrWfiTarget      = 0x210
	InstGrWfiPtrHi       = 0x214
	InstGrCsWfi          = 0x0
	InstGrWfiModeVirtual = 1 << 2
)

// InstGrWfiPtrLo encodes the low context pointer word (address >> 12).
func InstGrWfiPtrLo(v uint32) uint32 { return (v & 0xfffff) << 12 }

// InstGrWfiPtrHiValue encodes the high context pointer word.
func InstGrWfiPtrHiValue(v uint32) uint32 { return v & 0xff }

// ZcullVA decodes the zcull pointer handed over by user space.
func ZcullVA(lo, hi uint32) uint32 {
	return (lo>>8)&0x00ffffff | (hi<<24)&0xff000000
}
