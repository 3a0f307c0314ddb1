package gr

import (
	"context"
	"fmt"
	"sync"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/instrumentation/hooking"
)

// HookPosGoldenCapture fires after a golden image was captured. The item is
// the channel that captured it.
var HookPosGoldenCapture = &hooking.HookPos{Name: "GoldenCapture"}

// goldenImage is the canonical context every new channel starts from.
type goldenImage struct {
	lock        sync.Mutex
	initialized bool
	snapshot    []uint32
	captures    int
}

// drop forgets the captured image. The next channel captures again.
func (g *goldenImage) drop() {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.initialized = false
	g.snapshot = nil
}

// initGoldenImage captures the golden image through ch unless it was already
// captured. Only one capture runs at a time; a failed capture leaves the
// image uninitialized so that a later channel can try again.
func (e *Engine) initGoldenImage(ctx context.Context, ch *Channel) error {
	g := &e.golden

	g.lock.Lock()
	defer g.lock.Unlock()

	if g.initialized {
		return nil
	}

	if err := e.fecsBindChannel(ctx, ch); err != nil {
		return fmt.Errorf("golden image bind: %w", err)
	}

	if err := e.commitGlobalCtxBuffers(ch, e.sink(ch, false)); err != nil {
		return fmt.Errorf("golden image commit: %w", err)
	}

	gold := e.global.bufs[bufGolden]
	grCtx := ch.ctx.GrCtx

	e.mm.FlushFB()
	e.mm.FlushL2(false)

	for off := uint64(0); off < hw.CtxHeaderBytes; off += 4 {
		gold.Write32(off, grCtx.Read32(off))
	}

	gold.Write32(hw.CtxZcull, hw.CtxZcullModeNoCtxsw)
	gold.Write32(hw.CtxZcullPtr, 0)

	e.commitInst(ch, ch.ctx.GlobalVA[goldenVA])

	if err := e.fecsSaveImage(ctx, ch, hw.MethodWfiGoldenSave); err != nil {
		e.commitInst(ch, ch.ctx.GrCtxVA)
		return fmt.Errorf("golden image save: %w", err)
	}

	if g.snapshot == nil {
		words := e.sizes.golden / 4
		g.snapshot = make([]uint32, words)
		for i := range g.snapshot {
			g.snapshot[i] = gold.Read32(uint64(i) * 4)
		}
	}

	e.commitInst(ch, ch.ctx.GrCtxVA)

	g.initialized = true
	g.captures++

	e.mm.InvalidateL2()

	e.bus.Write32(hw.FecsCurrentCtx, hw.CurrentCtx(0, false))

	e.log.WithField("chid", ch.ID).Info("golden context image captured")
	e.InvokeHook(hooking.HookCtx{
		Domain: e,
		Pos:    HookPosGoldenCapture,
		Item:   ch,
	})

	return nil
}

// loadGoldenImage copies the golden image into the context image of ch and
// points it at the channel's own patch buffer.
func (e *Engine) loadGoldenImage(ch *Channel) error {
	g := &e.golden

	g.lock.Lock()
	snapshot := g.snapshot
	g.lock.Unlock()

	if snapshot == nil {
		return ErrNoGoldenImage
	}

	e.mm.FlushFB()
	e.mm.FlushL2(true)

	grCtx := ch.ctx.GrCtx
	for i, w := range snapshot {
		grCtx.Write32(uint64(i)*4, w)
	}

	grCtx.Write32(hw.CtxNumSaveOps, 0)
	grCtx.Write32(hw.CtxNumRestoreOps, 0)

	patch := ch.ctx.Patch
	grCtx.Write32(hw.CtxPatchCount, patch.DataCount)
	grCtx.Write32(hw.CtxPatchAdrLo, uint32(patch.VA))
	grCtx.Write32(hw.CtxPatchAdrHi, uint32(patch.VA>>32))

	grCtx.Write32(hw.CtxPm, hw.CtxPmModeNoCtxsw)
	grCtx.Write32(hw.CtxPmPtr, 0)

	e.mm.InvalidateL2()

	return nil
}
