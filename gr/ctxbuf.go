package gr

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/vidmem"
)

type globalBufferKind int

const (
	bufCircular globalBufferKind = iota
	bufCircularVPR
	bufPagePool
	bufPagePoolVPR
	bufAttribute
	bufAttributeVPR
	bufGolden
	numGlobalBuffers
)

var globalBufferNames = [numGlobalBuffers]string{
	"circular", "circular_vpr",
	"pagepool", "pagepool_vpr",
	"attribute", "attribute_vpr",
	"golden",
}

func (k globalBufferKind) String() string {
	return globalBufferNames[k]
}

// globalBuffers are shared by every channel. They live until the engine is
// torn down.
type globalBuffers struct {
	bufs [numGlobalBuffers]*vidmem.Buffer
}

// attribBufferSize clamps the attribute and alpha sizes to what a cbm
// register can express for one PES, records them as the resize limits and
// sizes the attribute buffer for all gpcs.
func (e *Engine) attribBufferSize() uint64 {
	attribDefault := uint32(hw.CbmCfgSizeDefault)
	alphaDefault := uint32(hw.CbmCfg2SizeDefault)

	attrib := attribDefault + attribDefault>>1
	alpha := alphaDefault + alphaDefault>>1

	attrib = min(attrib, hw.CbmCfgSize(^uint32(0))/hw.TpcPerPes)
	alpha = min(alpha, hw.CbmCfgSize(^uint32(0))/hw.TpcPerPes)

	e.cb.attribCbSize = attrib
	e.cb.alphaCbSize = alpha
	e.cb.attribCbDefaultSize = min(e.cb.attribCbDefaultSize, attrib)
	e.cb.alphaCbDefaultSize = min(e.cb.alphaCbDefaultSize, alpha)

	e.log.WithFields(logrus.Fields{
		"attrib_cb_size": attrib,
		"alpha_cb_size":  alpha,
	}).Debug("attribute buffer sizing")

	return uint64(hw.CbmCfgSizeGranularity*alpha+hw.CbmCfg2SizeGranularity*alpha) *
		uint64(e.topo.GpcCount)
}

// allocGlobalBuffers allocates every shared buffer. A failed primary
// allocation releases whatever this call already allocated; the protected
// variants are optional.
func (e *Engine) allocGlobalBuffers() error {
	sizes := map[globalBufferKind]uint64{
		bufCircular:  uint64(e.cb.bundleCbDefaultSize) * hw.BundleCbByteGranularity,
		bufPagePool:  hw.PagepoolHwmaxValue * hw.PagepoolByteGranularity,
		bufAttribute: e.attribBufferSize(),
		bufGolden:    uint64(e.sizes.golden),
	}

	for _, k := range []globalBufferKind{bufCircular, bufPagePool, bufAttribute, bufGolden} {
		buf, err := e.mm.Alloc(sizes[k])
		if err != nil {
			e.freeGlobalBuffers()
			return fmt.Errorf("allocating %s buffer: %w", k, classify(err))
		}

		e.global.bufs[k] = buf

		if !e.features.VPR || k == bufGolden {
			continue
		}

		vpr, err := e.mm.AllocProtected(sizes[k])
		if err != nil {
			e.log.WithError(err).Warnf("no protected %s buffer", k)
			continue
		}

		e.global.bufs[k+1] = vpr
	}

	return nil
}

func (e *Engine) freeGlobalBuffers() {
	for i, buf := range e.global.bufs {
		if buf != nil {
			e.mm.Put(buf)
			e.global.bufs[i] = nil
		}
	}
}

type globalMapping struct {
	slot   int
	kind   globalBufferKind
	cached bool
}

var globalMappings = []globalMapping{
	{circularVA, bufCircular, true},
	{attributeVA, bufAttribute, true},
	{pagePoolVA, bufPagePool, true},
	{goldenVA, bufGolden, false},
}

// mapGlobalBuffers maps the shared buffers into the address space of ch.
// The protected variant is used only for protected channels. Mappings made
// before a failure are undone.
func (e *Engine) mapGlobalBuffers(ch *Channel) error {
	for i, m := range globalMappings {
		buf := e.global.bufs[m.kind]
		if ch.VPR && m.kind != bufGolden && e.global.bufs[m.kind+1] != nil {
			buf = e.global.bufs[m.kind+1]
		}

		va, err := e.mm.Map(ch.AddressSpace(), buf, m.cached)
		if err != nil {
			for _, done := range globalMappings[:i] {
				e.unmapVA(ch, ch.ctx.GlobalVA[done.slot])
				ch.ctx.GlobalVA[done.slot] = 0
			}

			return fmt.Errorf("mapping %s buffer: %w", m.kind, classify(err))
		}

		ch.ctx.GlobalVA[m.slot] = va
	}

	ch.ctx.GlobalMapped = true

	return nil
}

func (e *Engine) unmapGlobalBuffers(ch *Channel) {
	for slot, va := range ch.ctx.GlobalVA {
		e.unmapVA(ch, va)
		ch.ctx.GlobalVA[slot] = 0
	}

	ch.ctx.GlobalMapped = false
}

func (e *Engine) unmapVA(ch *Channel, va uint64) {
	as := ch.AddressSpace()
	if va == 0 || as == nil {
		return
	}

	if err := e.mm.Unmap(as, va); err != nil {
		e.log.WithError(err).WithField("chid", ch.ID).Warnf("unmap %#x", va)
	}
}

// allocChannelGrCtx gives ch a context image of the golden size. An image
// that is already there is kept.
func (e *Engine) allocChannelGrCtx(ch *Channel) error {
	if ch.ctx.GrCtx != nil {
		return nil
	}

	buf, err := e.mm.Alloc(uint64(e.sizes.golden))
	if err != nil {
		return fmt.Errorf("allocating context image: %w", classify(err))
	}

	va, err := e.mm.Map(ch.AddressSpace(), buf, true)
	if err != nil {
		e.mm.Put(buf)
		return fmt.Errorf("mapping context image: %w", classify(err))
	}

	ch.ctx.GrCtx = buf
	ch.ctx.GrCtxVA = va

	return nil
}

func (e *Engine) freeChannelGrCtx(ch *Channel) {
	if ch.ctx.GrCtx == nil {
		return
	}

	e.unmapVA(ch, ch.ctx.GrCtxVA)
	e.mm.Put(ch.ctx.GrCtx)
	ch.ctx.GrCtx = nil
	ch.ctx.GrCtxVA = 0
}

// allocChannelPatchCtx allocates the patch buffer if needed and maps it if
// it is not mapped.
func (e *Engine) allocChannelPatchCtx(ch *Channel) error {
	p := &ch.ctx.Patch

	if p.Buf == nil {
		buf, err := e.mm.Alloc(PatchBufferSize)
		if err != nil {
			return fmt.Errorf("allocating patch buffer: %w", classify(err))
		}

		p.Buf = buf
	}

	if p.VA == 0 {
		va, err := e.mm.Map(ch.AddressSpace(), p.Buf, false)
		if err != nil {
			return fmt.Errorf("mapping patch buffer: %w", classify(err))
		}

		p.VA = va
		p.DataCount = 0
	}

	return nil
}

func (e *Engine) unmapChannelPatchCtx(ch *Channel) {
	e.unmapVA(ch, ch.ctx.Patch.VA)
	ch.ctx.Patch.VA = 0
	ch.ctx.Patch.DataCount = 0
}

func (e *Engine) freeChannelPatchCtx(ch *Channel) {
	e.unmapChannelPatchCtx(ch)

	if ch.ctx.Patch.Buf != nil {
		e.mm.Put(ch.ctx.Patch.Buf)
		ch.ctx.Patch.Buf = nil
	}
}
