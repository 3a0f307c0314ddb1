package gr

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/instrumentation/hooking"
)

// HookPosInterrupt fires at the end of every interrupt with pending bits.
// The detail is an IsrReport.
var HookPosInterrupt = &hooking.HookPos{Name: "Interrupt"}

// IsrState is the state of the interrupt handler.
type IsrState int32

// Interrupt handler states.
const (
	IsrIdle IsrState = iota
	IsrFaultPending
	IsrRecovering
)

func (s IsrState) String() string {
	switch s {
	case IsrIdle:
		return "idle"
	case IsrFaultPending:
		return "fault-pending"
	case IsrRecovering:
		return "recovering"
	default:
		return fmt.Sprintf("IsrState(%d)", int32(s))
	}
}

// IsrReport summarizes one interrupt.
type IsrReport struct {
	Intr      uint32
	Unhandled uint32
	ChannelID int
	Class     uint32
	Offset    uint32
	DataLo    uint32
	DataHi    uint32
	CurrCtx   uint32
	Reset     bool
	TornDown  bool
	Err       error
}

type isrData struct {
	addr    uint32
	dataLo  uint32
	dataHi  uint32
	currCtx uint32
	offset  uint32
	subch   uint32
	class   uint32
	ch      *Channel
}

type methodKey struct {
	class  uint32
	method uint32
}

type methodHandler func(e *Engine, d *isrData)

// softwareMethods are the methods the engine traps and emulates.
var softwareMethods = map[methodKey]methodHandler{
	{hw.KeplerComputeA, hw.MethodSetShaderExceptions}: (*Engine).setShaderExceptions,
	{hw.KeplerC, hw.MethodSetShaderExceptions}:        (*Engine).setShaderExceptions,
	{hw.KeplerC, hw.MethodSetCircularBufferSize}:      (*Engine).setCircularBufferSize,
	{hw.KeplerC, hw.MethodSetAlphaCircularBufferSize}: (*Engine).setAlphaCircularBufferSize,
}

// IsrState returns the current state of the interrupt handler.
func (e *Engine) IsrState() IsrState {
	return IsrState(e.isrState.Load())
}

// ISR services the pending graphics interrupts. Engine access is disabled
// while the handler runs and always enabled again before it returns.
func (e *Engine) ISR() {
	bus := e.bus

	intr := bus.Read32(hw.GrIntr)
	if intr == 0 {
		return
	}

	e.isrState.Store(int32(IsrFaultPending))
	defer e.isrState.Store(int32(IsrIdle))

	gpfifo := bus.Read32(hw.GrGpfifoCtl) &^
		(hw.GrGpfifoCtlAccess | hw.GrGpfifoCtlSemaphore)
	bus.Write32(hw.GrGpfifoCtl, gpfifo)

	d := &isrData{
		addr:    bus.Read32(hw.GrTrappedAddr),
		dataLo:  bus.Read32(hw.GrTrappedDataLo),
		dataHi:  bus.Read32(hw.GrTrappedDataHi),
		currCtx: bus.Read32(hw.FecsCurrentCtx),
	}
	d.offset = hw.TrappedAddrMethod(d.addr)
	d.subch = hw.TrappedAddrSubch(d.addr)
	d.class = hw.ObjectTableClass(bus.Read32(hw.FeObjectTable(d.subch)))

	report := IsrReport{
		Intr:      intr,
		ChannelID: -1,
		Class:     d.class,
		Offset:    d.offset,
		DataLo:    d.dataLo,
		DataHi:    d.dataHi,
		CurrCtx:   d.currCtx,
	}

	d.ch = e.tlb.lookup(d.currCtx, e.sched.Channels)
	if d.ch == nil {
		e.log.WithField("ctx", fmt.Sprintf("0x%08x", d.currCtx)).
			Error("invalid channel ctx")
	} else {
		report.ChannelID = d.ch.ID
		intr = e.dispatch(d, intr, &report)
	}

	bus.Write32(hw.GrGpfifoCtl,
		gpfifo|hw.GrGpfifoCtlAccess|hw.GrGpfifoCtlSemaphore)

	report.Unhandled = intr
	if intr != 0 && e.unhandledLog.Allow() {
		e.log.WithField("intr", fmt.Sprintf("0x%08x", intr)).
			Error("unhandled gr interrupt")
	}

	ctx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosInterrupt,
		Detail: report,
	}
	if d.ch != nil {
		ctx.Item = d.ch
	}

	e.InvokeHook(ctx)
}

// dispatch handles every cause in intr and returns the bits left over.
func (e *Engine) dispatch(d *isrData, intr uint32, report *IsrReport) uint32 {
	bus := e.bus
	log := e.log.WithFields(logrus.Fields{
		"chid":   d.ch.ID,
		"class":  fmt.Sprintf("0x%04x", d.class),
		"offset": fmt.Sprintf("0x%08x", d.offset),
	})

	log.WithFields(logrus.Fields{
		"intr":    fmt.Sprintf("0x%08x", intr),
		"data_lo": fmt.Sprintf("0x%08x", d.dataLo),
		"data_hi": fmt.Sprintf("0x%08x", d.dataHi),
	}).Debug("gr interrupt")

	var err error

	if intr&hw.GrIntrNotify != 0 {
		e.handleNotify(d)
		bus.Write32(hw.GrIntr, hw.GrIntrNotify)
		intr &^= hw.GrIntrNotify
	}

	if intr&hw.GrIntrIllegalMethod != 0 {
		err = e.handleIllegalMethod(d, report)
		bus.Write32(hw.GrIntr, hw.GrIntrIllegalMethod)
		intr &^= hw.GrIntrIllegalMethod
	}

	if intr&hw.GrIntrIllegalClass != 0 {
		err = e.recoverFromFault(report)
		log.Error("invalid class")
		bus.Write32(hw.GrIntr, hw.GrIntrIllegalClass)
		intr &^= hw.GrIntrIllegalClass

		if err == nil {
			err = fmt.Errorf("%w: class 0x%04x", ErrInvalidArgument, d.class)
		}
	}

	if intr&hw.GrIntrClassError != 0 {
		err = e.recoverFromFault(report)
		log.Error("class error")
		bus.Write32(hw.GrIntr, hw.GrIntrClassError)
		intr &^= hw.GrIntrClassError

		if err == nil {
			err = fmt.Errorf("%w: class error 0x%04x", ErrProtocolViolation, d.class)
		}
	}

	if intr&hw.GrIntrException != 0 {
		e.handleException(log)
		bus.Write32(hw.GrIntr, hw.GrIntrException)
		intr &^= hw.GrIntrException
	}

	if err != nil {
		report.Err = err
		report.TornDown = true
		e.sched.FreeChannel(d.ch, false)
	}

	return intr
}

func (e *Engine) handleNotify(d *isrData) {
	e.runCycleStats(d.ch, d.dataLo)
	d.ch.waiters.wake()
}

func (e *Engine) handleIllegalMethod(d *isrData, report *IsrReport) error {
	h, ok := softwareMethods[methodKey{d.class, d.offset << 2}]
	if ok {
		h(e, d)
		return nil
	}

	err := e.recoverFromFault(report)

	e.log.WithFields(logrus.Fields{
		"chid":    d.ch.ID,
		"class":   fmt.Sprintf("0x%04x", d.class),
		"offset":  fmt.Sprintf("0x%08x", d.offset),
		"address": fmt.Sprintf("0x%08x", d.addr),
	}).Error("invalid method")

	if err != nil {
		return err
	}

	return fmt.Errorf("%w: method 0x%x of class 0x%04x",
		ErrInvalidArgument, d.offset<<2, d.class)
}

func (e *Engine) handleException(log *logrus.Entry) {
	exception := e.bus.Read32(hw.GrException)
	log.WithField("exception", fmt.Sprintf("0x%08x", exception)).
		Debug("gr exception")

	if exception&hw.GrExceptionFe != 0 {
		fe := e.bus.Read32(hw.GrFeHwwEsr)
		log.WithField("fe", fmt.Sprintf("0x%08x", fe)).Warn("fe warning")
		e.bus.Write32(hw.GrFeHwwEsr, fe)
	}
}

// recoverFromFault resets the engine and drops the faulting method.
func (e *Engine) recoverFromFault(report *IsrReport) error {
	e.isrState.Store(int32(IsrRecovering))
	defer e.isrState.Store(int32(IsrFaultPending))

	report.Reset = true

	err := e.Reset(context.Background())
	if err != nil {
		e.log.WithError(err).Error("engine reset failed")
	}

	e.nopMethod()

	return err
}

// nopMethod replaces the faulting method in pbdma 0.
func (e *Engine) nopMethod() {
	e.bus.Write32(hw.PbdmaMethod0(0), hw.PbdmaUdmaNop)
	e.bus.Write32(hw.PbdmaData0(0), 0)
}

func (e *Engine) setShaderExceptions(d *isrData) {
	val := ^uint32(0)
	if d.dataLo == 0 {
		val = 0
	}

	e.bus.Write32(hw.GrGpcsTpcsSmHwwWarpEsrReportMask, val)
	e.bus.Write32(hw.GrGpcsTpcsSmHwwGlobalEsrReportMask, val)
}

func (e *Engine) setCircularBufferSize(d *isrData) {
	bus := e.bus
	t := e.topo

	size := d.dataLo * 4
	if size > e.cb.attribCbSize {
		size = e.cb.attribCbSize
	}

	bus.Write32(hw.GrDsTgaConstraintLogic,
		hw.ConstraintBetaCbsize(bus.Read32(hw.GrDsTgaConstraintLogic), size))

	for gpc := 0; gpc < t.GpcCount; gpc++ {
		for ppc := 0; ppc < t.GpcPpcCount[gpc]; ppc++ {
			reg := hw.Gpc0Ppc0CbmCfg + hw.PpcOffset(gpc, ppc)

			val := bus.Read32(reg)
			start := hw.CbmCfgStartOffset(val)

			val = hw.CbmCfgSetSize(val, size*uint32(t.PesTpcCount[ppc][gpc]))
			bus.Write32(reg, hw.CbmCfgSetStartOffset(val, start+1))
			bus.Write32(reg, hw.CbmCfgSetStartOffset(val, start))
		}
	}
}

func (e *Engine) setAlphaCircularBufferSize(d *isrData) {
	bus := e.bus
	t := e.topo

	size := d.dataLo * 4
	if size > e.cb.alphaCbSize {
		size = e.cb.alphaCbSize
	}

	bus.Write32(hw.GrDsTgaConstraintLogic,
		hw.ConstraintAlphaCbsize(bus.Read32(hw.GrDsTgaConstraintLogic), size))

	maxOutput := size * hw.CbmCfgSizeGranularity / hw.MaxOutputGranularity
	bus.Write32(hw.GrPdAbDistCfg1, hw.AbDistCfg1MaxOutput(maxOutput))

	for gpc := 0; gpc < t.GpcCount; gpc++ {
		for ppc := 0; ppc < t.GpcPpcCount[gpc]; ppc++ {
			reg := hw.Gpc0Ppc0CbmCfg2 + hw.PpcOffset(gpc, ppc)

			val := hw.CbmCfgSetSize(bus.Read32(reg),
				size*uint32(t.PesTpcCount[ppc][gpc]))
			bus.Write32(reg, val)
		}
	}
}
