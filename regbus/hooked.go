package regbus

import (
	"github.com/sarchlab/grengine/instrumentation/hooking"
)

// HookPosRead marks a register read. The hook item is an Access.
var HookPosRead = &hooking.HookPos{Name: "RegRead"}

// HookPosWrite marks a register write. The hook item is an Access.
var HookPosWrite = &hooking.HookPos{Name: "RegWrite"}

// AccessKind tells reads from writes.
type AccessKind int

// Access kinds.
const (
	AccessRead AccessKind = iota
	AccessWrite
)

func (k AccessKind) String() string {
	if k == AccessWrite {
		return "W"
	}

	return "R"
}

// Access is one register access as seen on the bus.
type Access struct {
	Kind  AccessKind
	Addr  uint32
	Value uint32
}

// HookedBus forwards every access to an underlying bus and reports it to
// the registered hooks.
type HookedBus struct {
	*hooking.HookableBase

	inner Bus
}

// NewHookedBus wraps inner.
func NewHookedBus(inner Bus) *HookedBus {
	return &HookedBus{
		HookableBase: hooking.NewHookableBase(),
		inner:        inner,
	}
}

// Read32 reads from the underlying bus and reports the value read.
func (b *HookedBus) Read32(addr uint32) uint32 {
	v := b.inner.Read32(addr)

	if b.NumHooks() > 0 {
		b.InvokeHook(hooking.HookCtx{
			Domain: b,
			Pos:    HookPosRead,
			Item:   Access{Kind: AccessRead, Addr: addr, Value: v},
		})
	}

	return v
}

// Write32 reports the write and forwards it to the underlying bus.
func (b *HookedBus) Write32(addr uint32, value uint32) {
	if b.NumHooks() > 0 {
		b.InvokeHook(hooking.HookCtx{
			Domain: b,
			Pos:    HookPosWrite,
			Item:   Access{Kind: AccessWrite, Addr: addr, Value: value},
		})
	}

	b.inner.Write32(addr, value)
}

// Inner returns the wrapped bus.
func (b *HookedBus) Inner() Bus {
	return b.inner
}

var _ Bus = (*HookedBus)(nil)
