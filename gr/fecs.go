package gr

import (
	"context"
	"fmt"

	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/hw"
)

// ctxSizes are the context image sizes the FECS reports. They are fixed once
// discovered.
type ctxSizes struct {
	known  bool
	golden uint32
	zcull  uint32
	pm     uint32
}

func (e *Engine) currentCtx(ch *Channel) uint32 {
	return hw.CurrentCtx(ch.InstPtr(), true)
}

func (e *Engine) fecsBindChannel(ctx context.Context, ch *Channel) error {
	_, err := e.fecs.Submit(ctx, falcon.Method{
		Name:         "bind channel",
		MailboxClear: 0x30,
		Data:         e.currentCtx(ch),
		Addr:         hw.MethodBindPointer,
		Ok:           falcon.BitAnd(0x10),
		Fail:         falcon.BitAnd(0x20),
	})

	return classify(err)
}

func (e *Engine) fecsSaveImage(ctx context.Context, ch *Channel, method uint32) error {
	_, err := e.fecs.Submit(ctx, falcon.Method{
		Name:         "save image",
		MailboxClear: 3,
		Data:         e.currentCtx(ch),
		Addr:         method,
		Ok:           falcon.BitAnd(1),
		Fail:         falcon.BitAnd(2),
	})

	return classify(err)
}

func (e *Engine) fecsDiscover(ctx context.Context, name string, method uint32) (uint32, error) {
	v, err := e.fecs.Submit(ctx, falcon.Method{
		Name:         name,
		MailboxClear: ^uint32(0),
		Addr:         method,
		Ok:           falcon.Ne(0),
		Fail:         falcon.NoCheck(),
	})

	return v, classify(err)
}

// discoverCtxSizes queries the image sizes. After a reset the firmware must
// report the sizes it reported at init.
func (e *Engine) discoverCtxSizes(ctx context.Context) error {
	var got ctxSizes
	var err error

	got.golden, err = e.fecsDiscover(ctx, "discover image size", hw.MethodDiscoverImageSize)
	if err != nil {
		return err
	}

	got.zcull, err = e.fecsDiscover(ctx, "discover zcull image size", hw.MethodDiscoverZcullImageSize)
	if err != nil {
		return err
	}

	got.pm, err = e.fecsDiscover(ctx, "discover pm image size", hw.MethodDiscoverPmImageSize)
	if err != nil {
		return err
	}

	got.known = true

	if !e.sizes.known {
		e.sizes = got
		e.log.WithField("golden_image_size", got.golden).
			WithField("zcull_image_size", got.zcull).
			WithField("pm_image_size", got.pm).
			Info("context image sizes")

		return nil
	}

	if got != e.sizes {
		return fmt.Errorf("%w: context image sizes changed from %+v to %+v",
			ErrProtocolViolation, e.sizes, got)
	}

	return nil
}
