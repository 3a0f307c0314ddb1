package gr

import (
	"context"
	"fmt"

	"github.com/sarchlab/grengine/hw"
)

// objectClasses are the classes a channel may instantiate on this engine.
var objectClasses = map[uint32]bool{
	hw.KeplerC:        true,
	hw.KeplerComputeA: true,
	hw.FermiTwodA:     true,
	hw.KeplerDMACopyA: true,
}

// AllocObjCtx creates an object of class on ch. The first object gives the
// channel its context image, its patch buffer and its mappings of the
// global buffers, and loads the golden image into the context image.
//
// Buffers and mappings made before a failure stay with the channel; the
// next call reuses them.
func (e *Engine) AllocObjCtx(ctx context.Context, ch *Channel, class uint32) error {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if ch.AddressSpace() == nil {
		return ErrNoAddressSpace
	}

	if !objectClasses[class] {
		return fmt.Errorf("%w: object class 0x%04x", ErrInvalidArgument, class)
	}

	log := e.log.WithField("chid", ch.ID).WithField("class", fmt.Sprintf("0x%04x", class))

	if err := e.allocChannelGrCtx(ch); err != nil {
		log.WithError(err).Error("fail to allocate gr ctx buffer")
		return err
	}

	e.commitInst(ch, ch.ctx.GrCtxVA)

	if err := e.allocChannelPatchCtx(ch); err != nil {
		log.WithError(err).Error("fail to allocate patch buffer")
		return err
	}

	if !ch.ctx.GlobalMapped {
		if err := e.mapGlobalBuffers(ch); err != nil {
			log.WithError(err).Error("fail to map global ctx buffer")
			return err
		}

		if err := e.commitGlobalCtxBuffers(ch, e.sink(ch, true)); err != nil {
			log.WithError(err).Error("fail to commit global ctx buffer")
			return err
		}
	}

	if err := e.initGoldenImage(ctx, ch); err != nil {
		log.WithError(err).Error("fail to init golden ctx image")
		return err
	}

	if !ch.ctx.FirstInit {
		if err := e.loadGoldenImage(ch); err != nil {
			log.WithError(err).Error("fail to load golden ctx image")
			return err
		}

		ch.ctx.FirstInit = true
	}

	e.mm.InvalidateL2()
	ch.ctx.NumObjects++

	log.WithField("objects", ch.ctx.NumObjects).Debug("object allocated")

	return nil
}

// FreeObjCtx drops one object of ch. When the last one goes the channel is
// disabled and its patch buffer unmapped; the context image is kept until
// FreeChannelCtx.
func (e *Engine) FreeObjCtx(ctx context.Context, ch *Channel) {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if ch.ctx.NumObjects == 0 {
		return
	}

	ch.ctx.NumObjects--
	if ch.ctx.NumObjects > 0 {
		return
	}

	ch.ctx.FirstInit = false
	e.sched.DisableChannel(ctx, ch, true)
	e.unmapChannelPatchCtx(ch)
}

// FreeChannelCtx releases everything the engine attached to ch.
func (e *Engine) FreeChannelCtx(ch *Channel) {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	e.unmapGlobalBuffers(ch)
	e.freeChannelPatchCtx(ch)
	e.freeChannelGrCtx(ch)

	ch.ctx = ChannelContext{}
}
