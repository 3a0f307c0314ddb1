package gr

import (
	"sync"

	"github.com/sarchlab/grengine/hw"
)

const channelTLBSize = 2

type tlbEntry struct {
	currCtx uint32
	ch      *Channel
}

// channelTLB caches which channel a current-context word belongs to. It is
// not authoritative; a miss scans all channels.
type channelTLB struct {
	lock       sync.Mutex
	entries    [channelTLBSize]tlbEntry
	flushIndex int
}

// lookup resolves currCtx to an open channel, or nil when no open channel
// owns the instance block currCtx points at.
func (t *channelTLB) lookup(currCtx uint32, channels func() []*Channel) *Channel {
	t.lock.Lock()
	defer t.lock.Unlock()

	for i := range t.entries {
		en := &t.entries[i]
		if en.currCtx != currCtx || en.ch == nil {
			continue
		}

		if en.ch.InUse() {
			return en.ch
		}

		*en = tlbEntry{}
	}

	var found *Channel
	ptr := hw.CurrentCtxPtr(currCtx)
	for _, ch := range channels() {
		if ch.InUse() && ch.InstPtr() == ptr {
			found = ch
			break
		}
	}

	if found == nil {
		return nil
	}

	for i := range t.entries {
		if t.entries[i].currCtx == 0 {
			t.entries[i] = tlbEntry{currCtx: currCtx, ch: found}
			return found
		}
	}

	t.entries[t.flushIndex] = tlbEntry{currCtx: currCtx, ch: found}
	t.flushIndex = (t.flushIndex + 1) & (channelTLBSize - 1)

	return found
}

func (t *channelTLB) flush() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.entries = [channelTLBSize]tlbEntry{}
	t.flushIndex = 0
}

// FlushChannelTLB forgets every cached context-to-channel translation. The
// channel layer calls it when channels close.
func (e *Engine) FlushChannelTLB() {
	e.tlb.flush()
}
