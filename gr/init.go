package gr

import (
	"context"
	"fmt"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/poll"
)

// RegInit is one register initialization.
type RegInit struct {
	Addr  uint32
	Value uint32
}

// InitLists are the register initializations that come with the firmware
// images of a chip.
type InitLists struct {
	NonCtxLoad []RegInit
	CtxLoad    []RegInit
	BundleInit []RegInit
	MethodInit []RegInit
}

// InitSupport brings the engine up: reset, firmware boot, software state
// and the full hardware programming.
func (e *Engine) InitSupport(ctx context.Context) error {
	e.initLock.Lock()
	defer e.initLock.Unlock()

	e.prepare()

	if err := e.resetEnableHW(ctx); err != nil {
		return err
	}

	if err := e.setupSW(); err != nil {
		return err
	}

	if err := e.setupHW(ctx); err != nil {
		return err
	}

	e.log.Info("graphics engine initialized")

	return nil
}

// Reset reinitializes the engine hardware. The software state survives; the
// golden image is captured again by the next channel.
func (e *Engine) Reset(ctx context.Context) error {
	e.initLock.Lock()
	defer e.initLock.Unlock()

	e.golden.drop()

	e.prepare()

	if err := e.resetEnableHW(ctx); err != nil {
		return err
	}

	if err := e.setupHW(ctx); err != nil {
		return err
	}

	e.log.Warn("graphics engine reset")

	return nil
}

// RemoveSupport releases the software state. InitSupport builds it again.
func (e *Engine) RemoveSupport() {
	e.initLock.Lock()
	defer e.initLock.Unlock()

	e.removeSupport()
}

func (e *Engine) removeSupport() {
	e.freeGlobalBuffers()
	e.freeComptag()
	e.golden.drop()
	e.tlb.flush()
	e.swReady = false
}

// Suspend waits for the engine to go idle, then cuts it off from the fifo
// and masks every interrupt and exception.
func (e *Engine) Suspend(ctx context.Context) error {
	if err := e.WaitIdle(ctx); err != nil {
		return err
	}

	bus := e.bus
	bus.Write32(hw.GrGpfifoCtl, 0)

	bus.Write32(hw.GrIntr, 0)
	bus.Write32(hw.GrIntrEn, 0)

	bus.Write32(hw.GrException, 0)
	bus.Write32(hw.GrExceptionEn, 0)
	bus.Write32(hw.GrException1, 0)
	bus.Write32(hw.GrException1En, 0)
	bus.Write32(hw.GrException2, 0)
	bus.Write32(hw.GrException2En, 0)

	e.tlb.flush()

	e.log.Info("graphics engine suspended")

	return nil
}

// WaitIdle waits until the engine is disabled, or neither busy nor in a
// context switch.
func (e *Engine) WaitIdle(ctx context.Context) error {
	bus := e.bus

	var busy, ctxsw bool
	err := poll.Until(ctx, e.pollCfg, func() (bool, error) {
		bus.Read32(hw.GrStatus)

		enabled := bus.Read32(hw.McEnable)&hw.McEnablePgraph != 0
		ctxsw = bus.Read32(hw.FifoEngineStatus(hw.GrEngineID))&
			hw.FifoEngineStatusCtxswPending != 0
		busy = bus.Read32(hw.GrEngineStatus)&hw.GrEngineStatusBusy != 0

		return !enabled || (!busy && !ctxsw), nil
	})
	if err != nil {
		e.log.WithField("ctxsw_busy", ctxsw).
			WithField("gr_busy", busy).
			Error("timeout waiting for engine idle")

		return classify(err)
	}

	return nil
}

// prepare gates the engine off and on again with fifo access disabled.
func (e *Engine) prepare() {
	bus := e.bus
	engines := uint32(hw.McEnablePgraph | hw.McEnableBlg | hw.McEnablePerfmon)

	bus.Write32(hw.GrGpfifoCtl, bus.Read32(hw.GrGpfifoCtl)&^hw.GrGpfifoCtlAccess)

	bus.Write32(hw.McEnable, bus.Read32(hw.McEnable)&^engines)
	bus.Write32(hw.McEnable, bus.Read32(hw.McEnable)|engines)
	bus.Read32(hw.McEnable)

	bus.Write32(hw.GrGpfifoCtl, hw.GrGpfifoCtlAccess|hw.GrGpfifoCtlSemaphore)
}

func (e *Engine) resetEnableHW(ctx context.Context) error {
	bus := e.bus

	bus.Write32(hw.GrIntr, ^uint32(0))
	bus.Write32(hw.GrIntrEn, ^uint32(0))

	e.ctxReset(ctx, 0)

	bus.Write32(hw.GrSccInit, hw.GrSccInitRAMTrigger)

	for _, r := range e.lists.NonCtxLoad {
		bus.Write32(r.Addr, r.Value)
	}

	if err := e.WaitIdle(ctx); err != nil {
		return err
	}

	if err := e.falcons.Bootstrap(ctx, e.fecs, e.images); err != nil {
		return fmt.Errorf("context switch firmware: %w", classify(err))
	}

	return e.discoverCtxSizes(ctx)
}

// ctxReset pulses the context switch reset with the engine clocks forced
// on. A zero mask resets the contexts only.
func (e *Engine) ctxReset(ctx context.Context, mask uint32) {
	bus := e.bus

	bus.Write32(hw.GrFePwrMode, hw.GrFePwrModeReqSend|hw.GrFePwrModeForceOn)
	if err := e.waitPwrModeDone(ctx); err != nil {
		e.log.WithError(err).Error("failed to force the clocks on")
	}

	if mask == 0 {
		mask = hw.ResetCtlEngineResetDisabled
	}

	bus.Write32(hw.FecsCtxswResetCtl, mask)
	bus.Read32(hw.FecsCtxswResetCtl)

	bus.Write32(hw.FecsCtxswResetCtl,
		hw.ResetCtlEngineResetDisabled|hw.ResetCtlContextResetDisabled)
	bus.Read32(hw.FecsCtxswResetCtl)

	bus.Write32(hw.GrFePwrMode, hw.GrFePwrModeReqSend|hw.GrFePwrModeAuto)
	if err := e.waitPwrModeDone(ctx); err != nil {
		e.log.WithError(err).Error("failed to set power mode to auto")
	}
}

func (e *Engine) waitPwrModeDone(ctx context.Context) error {
	return poll.Until(ctx, e.pollCfg, func() (bool, error) {
		return e.bus.Read32(hw.GrFePwrMode)&hw.GrFePwrModeReqMask == 0, nil
	})
}

// setupSW builds the software view of the engine once.
func (e *Engine) setupSW() error {
	if e.swReady {
		return nil
	}

	topo, err := DiscoverTopology(e.bus)
	if err != nil {
		return err
	}

	e.topo = topo
	e.cb = defaultCBConfig(e.features.Timeslice)

	if !e.tiles.fits(topo) {
		e.tiles, err = ComputeTileMap(topo)
		if err != nil {
			return err
		}
	}

	if err := e.initComptag(); err != nil {
		e.removeSupport()
		return err
	}

	e.zcull = e.computeZcullInfo()

	if err := e.allocGlobalBuffers(); err != nil {
		e.removeSupport()
		return err
	}

	e.swReady = true

	return nil
}

// setupHW programs the engine from scratch. Go-idle is disabled while the
// context state is overridden and the bundles are loaded.
func (e *Engine) setupHW(ctx context.Context) error {
	bus := e.bus

	if err := e.zcullInitHW(); err != nil {
		return err
	}

	e.setElcgMode(e.features.ElcgMode, hw.GrEngineID)
	e.setElcgMode(e.features.ElcgMode, hw.Ce2EngineID)

	bus.Write32(hw.GrGpfifoCtl, hw.GrGpfifoCtlAccess|hw.GrGpfifoCtlSemaphore)

	bus.Write32(hw.GrIntr, ^uint32(0))
	bus.Write32(hw.GrIntrEn, ^uint32(0))

	bus.Write32(hw.FecsHostIntEnable,
		hw.HostIntEnableFaultDuringCtxsw|
			hw.HostIntEnableUmimpFirmwareMethod|
			hw.HostIntEnableUmimpIllegalMethod|
			hw.HostIntEnableWatchdog)

	bus.Write32(hw.GrFeHwwEsr, hw.GrFeHwwEsrEn|hw.GrFeHwwEsrReset)

	bus.Write32(hw.GrException, ^uint32(0))
	bus.Write32(hw.GrExceptionEn, ^uint32(0))
	bus.Write32(hw.GrException1, ^uint32(0))
	bus.Write32(hw.GrException1En, ^uint32(0))
	bus.Write32(hw.GrException2, ^uint32(0))
	bus.Write32(hw.GrException2En, ^uint32(0))

	if err := e.initZbc(ctx); err != nil {
		return err
	}

	bus.Write32(hw.LtcCbcBase, e.comptag.cbcBase)

	for _, r := range e.lists.CtxLoad {
		bus.Write32(r.Addr, r.Value)
	}

	if err := e.WaitIdle(ctx); err != nil {
		return err
	}

	goIdle := bus.Read32(hw.GrFeGoIdleTimeout)
	bus.Write32(hw.GrFeGoIdleTimeout, hw.GrFeGoIdleDisabled)

	direct := Direct{Bus: bus}
	if err := e.commitGlobalCBManager(direct); err != nil {
		return err
	}

	if err := e.commitGlobalTimeslice(direct); err != nil {
		return err
	}

	e.floorsweep()

	err := e.WaitIdle(ctx)
	if err == nil {
		err = e.loadBundles(ctx)
	}

	bus.Write32(hw.GrFeGoIdleTimeout, goIdle)

	if err != nil {
		return err
	}

	if err := e.WaitIdle(ctx); err != nil {
		return err
	}

	e.loadMethods()
	e.mm.InvalidateL2()

	return e.WaitIdle(ctx)
}

func (e *Engine) loadBundles(ctx context.Context) error {
	bus := e.bus

	bus.Write32(hw.GrPipeBundleConfig, hw.GrBundleOverride)

	var err error
	for i, r := range e.lists.BundleInit {
		if i == 0 || e.lists.BundleInit[i-1].Value != r.Value {
			bus.Write32(hw.GrPipeBundleData, r.Value)
		}

		bus.Write32(hw.GrPipeBundleAddress, r.Addr)

		if hw.PipeBundleAddressValue(r.Addr) == hw.GoIdleBundle && err == nil {
			err = e.WaitIdle(ctx)
		}
	}

	bus.Write32(hw.GrPipeBundleConfig, 0)

	return err
}

func (e *Engine) loadMethods() {
	bus := e.bus

	for i, r := range e.lists.MethodInit {
		if i == 0 || e.lists.MethodInit[i-1].Value != r.Value {
			bus.Write32(hw.GrMmeShadowRawData, r.Value)
		}

		bus.Write32(hw.GrMmeShadowRawIndex, hw.GrMmeShadowRawWrite|r.Addr)
	}
}
