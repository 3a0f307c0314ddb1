package gr

import (
	"sync"
	"sync/atomic"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/vidmem"
)

// Indices into the per-channel global buffer mappings.
const (
	circularVA = iota
	attributeVA
	pagePoolVA
	goldenVA
	numGlobalVA
)

// PatchContext is the deferred-write log of a channel.
type PatchContext struct {
	Buf       *vidmem.Buffer
	VA        uint64
	DataCount uint32
}

// ZcullContext is the zcull binding stored in a channel context image.
type ZcullContext struct {
	Mode uint32
	VA   uint64
}

// ChannelContext is the engine state attached to a channel.
type ChannelContext struct {
	GrCtx   *vidmem.Buffer
	GrCtxVA uint64

	Patch PatchContext
	Zcull ZcullContext

	GlobalVA     [numGlobalVA]uint64
	GlobalMapped bool

	FirstInit  bool
	NumObjects int
}

// A Channel is a hardware channel as the engine sees it. The channel layer
// creates it and owns the instance block and the address space; the engine
// owns the context.
type Channel struct {
	ID        int
	VPR       bool
	InstBlock *vidmem.Buffer

	lock  sync.Mutex
	vm    atomic.Pointer[vidmem.AddressSpace]
	inUse atomic.Bool
	ctx   ChannelContext

	waiters notifier

	cyclestatsLock sync.Mutex
	cyclestats     []byte
}

// NewChannel creates a channel around an allocated instance block.
func NewChannel(id int, inst *vidmem.Buffer, vpr bool) *Channel {
	return &Channel{
		ID:        id,
		VPR:       vpr,
		InstBlock: inst,
	}
}

// BindAddressSpace attaches the address space the channel's buffers are
// mapped into.
func (c *Channel) BindAddressSpace(as *vidmem.AddressSpace) {
	c.vm.Store(as)
}

// AddressSpace returns the bound address space, or nil. It does not take
// the channel lock, so the context-switch unit may call it while the
// engine is setting up the channel.
func (c *Channel) AddressSpace() *vidmem.AddressSpace {
	return c.vm.Load()
}

// SetInUse marks whether the channel is open.
func (c *Channel) SetInUse(v bool) {
	c.inUse.Store(v)
}

// InUse tells if the channel is open.
func (c *Channel) InUse() bool {
	return c.inUse.Load()
}

// InstPtr is the instance block address in the form the context-switch
// unit reports it.
func (c *Channel) InstPtr() uint32 {
	return uint32(c.InstBlock.PhysAddr >> hw.InstBlockShift)
}

// Ctx returns a copy of the channel's engine context.
func (c *Channel) Ctx() ChannelContext {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.ctx
}

// NotifyWait returns a channel that is closed on the next notify interrupt
// of this channel.
func (c *Channel) NotifyWait() <-chan struct{} {
	return c.waiters.wait()
}

// AttachCycleStats shares buf with the notify handler. Elements in buf are
// executed when the channel raises a notify interrupt whose payload is an
// offset into buf.
func (c *Channel) AttachCycleStats(buf []byte) {
	c.cyclestatsLock.Lock()
	defer c.cyclestatsLock.Unlock()

	c.cyclestats = buf
}

// DetachCycleStats stops sharing the buffer.
func (c *Channel) DetachCycleStats() {
	c.cyclestatsLock.Lock()
	defer c.cyclestatsLock.Unlock()

	c.cyclestats = nil
}

type notifier struct {
	lock sync.Mutex
	ch   chan struct{}
}

func (n *notifier) wait() <-chan struct{} {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.ch == nil {
		n.ch = make(chan struct{})
	}

	return n.ch
}

func (n *notifier) wake() {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.ch != nil {
		close(n.ch)
		n.ch = nil
	}
}
