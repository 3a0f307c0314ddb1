package gr

import (
	"context"
	"fmt"

	"github.com/sarchlab/grengine/hw"
)

// ZcullInfo describes the zcull geometry user space needs to size its zcull
// buffers.
type ZcullInfo struct {
	WidthAlignPixels           uint32
	HeightAlignPixels          uint32
	PixelSquaresByAliquots     uint32
	AliquotTotal               uint32
	RegionByteMultiplier       uint32
	RegionHeaderSize           uint32
	SubregionHeaderSize        uint32
	SubregionWidthAlignPixels  uint32
	SubregionHeightAlignPixels uint32
	SubregionCount             uint32
}

// Zcull context-switch modes of a channel.
const (
	ZcullModeNoCtxsw  = hw.CtxZcullModeNoCtxsw
	ZcullModeSeparate = hw.CtxZcullModeSeparate
)

// computeZcullInfo derives the zcull geometry from the topology and the
// zcull ram size of gpc 0.
func (e *Engine) computeZcullInfo() ZcullInfo {
	t := e.topo
	tpc := uint32(t.TpcCount)
	gpc := uint32(t.GpcCount)

	aliquots := hw.ZcullTotalRAMAliquots(e.bus.Read32(hw.Gpc0ZcullTotalRAMSize))

	info := ZcullInfo{
		WidthAlignPixels:           tpc * 16,
		HeightAlignPixels:          32,
		AliquotTotal:               aliquots,
		RegionByteMultiplier:       gpc * hw.ZcullBytesPerAliquot,
		RegionHeaderSize:           hw.ScalNumGpcs * hw.ZcullHeaderBytesPerGpc,
		SubregionHeaderSize:        hw.ScalNumGpcs * hw.ZcullSubregionHdrBytes,
		SubregionWidthAlignPixels:  tpc * hw.ZcullSubregionWidthMul,
		SubregionHeightAlignPixels: hw.ZcullSubregionHeight,
		SubregionCount:             hw.ZcullSubregionQty,
	}

	if t.GpcCount > 0 && t.GpcTpcCount[0] > 0 {
		info.PixelSquaresByAliquots = uint32(t.ZcbCount) * 16 * 16 * tpc /
			(gpc * uint32(t.GpcTpcCount[0]))
	}

	return info
}

// ZcullInfo returns the zcull geometry computed at software setup.
func (e *Engine) ZcullInfo() ZcullInfo {
	return e.zcull
}

// ZcullCtxSize is the size of a channel's separate zcull buffer.
func (e *Engine) ZcullCtxSize() uint32 {
	return e.sizes.zcull
}

// BindCtxswZcull selects how the zcull state of ch is switched. In separate
// mode va is the GPU address of the zcull buffer of the channel.
func (e *Engine) BindCtxswZcull(
	ctx context.Context,
	ch *Channel,
	va uint64,
	mode uint32,
) error {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if ch.ctx.GrCtx == nil {
		return fmt.Errorf("%w: channel %d has no context image",
			ErrInvalidArgument, ch.ID)
	}

	ch.ctx.Zcull = ZcullContext{Mode: mode, VA: va}

	return e.setupZcullCtx(ctx, ch, true)
}

// setupZcullCtx writes the zcull mode and pointer of ch into its context
// image. When fenced, engine activity is disabled around the update.
func (e *Engine) setupZcullCtx(ctx context.Context, ch *Channel, fenced bool) error {
	z := ch.ctx.Zcull
	if z.VA == 0 && z.Mode == hw.CtxZcullModeSeparate {
		return fmt.Errorf("%w: separate zcull buffer without address",
			ErrInvalidArgument)
	}

	ptr := hw.ZcullVA(uint32(z.VA), uint32(z.VA>>32))

	if fenced {
		err := e.sched.DisableEngineActivity(ctx, hw.GrEngineID)
		if err != nil {
			return fmt.Errorf("disable engine activity: %w", classify(err))
		}
	}

	e.mm.FlushFB()
	e.mm.FlushL2(true)

	ch.ctx.GrCtx.Write32(hw.CtxZcull, z.Mode)
	ch.ctx.GrCtx.Write32(hw.CtxZcullPtr, ptr)

	if fenced {
		err := e.sched.EnableEngineActivity(hw.GrEngineID)
		if err != nil {
			return fmt.Errorf("enable engine activity: %w", classify(err))
		}
	}

	e.mm.InvalidateL2()

	return nil
}

// zcullInitHW programs the zcull bank of every screen tile and the per-gpc
// zcull ram layout.
func (e *Engine) zcullInitHW() error {
	t := e.topo
	bus := e.bus

	if len(e.tiles.Tiles) == 0 {
		return fmt.Errorf("%w: zcull init before tile map", ErrInvalidArgument)
	}

	mapTiles := make([]uint32, hw.MaxGpcs*hw.MaxTpcPerGpc)
	bankCounters := make([]uint32, hw.MaxGpcs*hw.MaxTpcPerGpc)

	for i := 0; i < t.TpcCount; i++ {
		gpc := e.tiles.Tile(i)
		mapTiles[i] = bankCounters[gpc]
		bankCounters[gpc]++
	}

	for reg := 0; reg < 4; reg++ {
		var v uint32
		for n := reg * 8; n < reg*8+8; n++ {
			v |= hw.ZcullTile(n, mapTiles[n])
		}

		bus.Write32(hw.ZcullSmInGpcNumberMap(reg), v)
	}

	floorswept := false
	for gpc := 0; gpc < t.GpcCount; gpc++ {
		zcb := t.GpcZcbCount[gpc]
		tpc := t.GpcTpcCount[gpc]

		if zcb != t.MaxZcullPerGpc && zcb < tpc {
			return fmt.Errorf("%w: zcull banks (%d) less than tpcs (%d) for gpc %d",
				ErrInvalidArgument, zcb, tpc, gpc)
		}

		if zcb != t.MaxZcullPerGpc && zcb != 0 {
			floorswept = true
		}
	}

	for gpc := 0; gpc < t.GpcCount; gpc++ {
		off := hw.GpcOffset(gpc)

		perRow := uint32(t.GpcTpcCount[gpc])
		if floorswept {
			perRow = uint32(t.MaxZcullPerGpc)
		}

		bus.Write32(hw.Gpc0ZcullRAMAddr+off,
			hw.ZcullRAMAddr(uint32(e.tiles.RowOffset), perRow))
		bus.Write32(hw.Gpc0ZcullFs+off,
			hw.ZcullFs(uint32(t.TpcCount), uint32(t.GpcZcbCount[gpc])))
		bus.Write32(hw.Gpc0ZcullSmNumRcp+off, hw.ZcullSmNumRcpMax)
	}

	bus.Write32(hw.GrWwdxSmNumRcp, hw.ZcullSmNumRcpMax)

	return nil
}
