package gr

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/vidmem"
)

// comptagStore is the compression bit backing store in video memory.
type comptagStore struct {
	buf     *vidmem.Buffer
	size    uint64
	lines   uint32
	basePA  uint64
	cbcBase uint32
}

// comptagGeometry sizes the backing store covering maxMemMB of memory. One
// tag line covers 128KB.
func comptagGeometry(maxMemMB uint32, cbcParam uint32, fbps int) (size uint64, lines uint32) {
	lines = maxMemMB << 3
	if lines == 0 {
		return 0, 0
	}

	if lines > hw.CbcMaxComptagLines {
		lines = hw.CbcMaxComptagLines
	}

	perLine := uint64(hw.CbcParamComptagsPerCacheline(cbcParam))
	lineSize := uint64(hw.CbcParamCachelineSize(cbcParam))
	slices := uint64(hw.CbcParamSlicesPerFbp(cbcParam))
	nfbp := uint64(fbps)

	if perLine == 0 {
		return 0, 0
	}

	size = (uint64(lines)+perLine-1)/perLine*lineSize*slices*nfbp +
		nfbp<<hw.CbcBaseAlignShift
	size = (size + 0xffff) &^ 0xffff

	covered := size * perLine / lineSize * slices * nfbp
	if covered > hw.CbcMaxComptagLines {
		covered = hw.CbcMaxComptagLines
	}

	return size, uint32(covered)
}

// cbcBase is the backing store address in the form the ltc expects: divided
// by the alignment and the fbp count, rounded up.
func cbcBase(pa uint64, fbps int) uint32 {
	if fbps == 0 {
		return 0
	}

	div := (pa >> hw.CbcBaseAlignShift) / uint64(fbps)
	if (div*uint64(fbps))<<hw.CbcBaseAlignShift < pa {
		div++
	}

	return uint32(div)
}

func (e *Engine) initComptag() error {
	size, lines := comptagGeometry(e.features.MaxComptagMemMB,
		e.bus.Read32(hw.LtcCbcParam), e.topo.FbpCount)
	if size == 0 {
		e.comptag = comptagStore{}
		return nil
	}

	buf, err := e.mm.Alloc(size)
	if err != nil {
		return fmt.Errorf("compbit backing store of %d bytes: %w",
			size, classify(err))
	}

	pa := e.mm.DeviceAddr(buf)
	e.comptag = comptagStore{
		buf:     buf,
		size:    size,
		lines:   lines,
		basePA:  pa,
		cbcBase: cbcBase(pa, e.topo.FbpCount),
	}

	e.log.WithFields(logrus.Fields{
		"size":  size,
		"lines": lines,
	}).Debug("compbit backing store allocated")

	return nil
}

func (e *Engine) freeComptag() {
	if e.comptag.buf != nil {
		e.mm.Put(e.comptag.buf)
	}

	e.comptag = comptagStore{}
}

// ComptagLines reports how many compression tag lines the backing store
// covers.
func (e *Engine) ComptagLines() uint32 {
	return e.comptag.lines
}

// ClearComptags clears compression tag lines first through last and waits until
// every slice of every fbp reports the clear done.
func (e *Engine) ClearComptags(ctx context.Context, first, last uint32) error {
	if e.comptag.size == 0 {
		return nil
	}

	if first > last || last > hw.CbcCtrl3ClearUpperMax {
		return fmt.Errorf("%w: comptag range [%d, %d]",
			ErrInvalidArgument, first, last)
	}

	bus := e.bus
	slices := int(hw.CbcParamSlicesPerFbp(bus.Read32(hw.LtcCbcParam)))

	bus.Write32(hw.LtcCbcCtrl2, first)
	bus.Write32(hw.LtcCbcCtrl3, last)
	bus.Write32(hw.LtcCbcCtrl1, bus.Read32(hw.LtcCbcCtrl1)|hw.CbcCtrl1ClearActive)

	for fbp := 0; fbp < e.topo.FbpCount; fbp++ {
		for slice := 0; slice < slices; slice++ {
			reg := hw.LtsCbcCtrl1(fbp, slice)

			err := poll.Until(ctx, e.pollCfg, func() (bool, error) {
				return bus.Read32(reg)&hw.CbcCtrl1ClearActive == 0, nil
			})
			if err != nil {
				e.log.WithFields(logrus.Fields{
					"fbp":   fbp,
					"slice": slice,
				}).Error("comptag clear timeout")

				return classify(err)
			}
		}
	}

	return nil
}
