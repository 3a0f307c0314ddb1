package gr

import (
	"fmt"
	"strings"

	"github.com/sarchlab/grengine/hw"
)

// ElcgMode is the engine-level clock gating mode.
type ElcgMode int

// Clock gating modes.
const (
	ElcgRun ElcgMode = iota
	ElcgStop
	ElcgAuto
)

func (m ElcgMode) String() string {
	switch m {
	case ElcgRun:
		return "run"
	case ElcgStop:
		return "stop"
	case ElcgAuto:
		return "auto"
	default:
		return fmt.Sprintf("ElcgMode(%d)", int(m))
	}
}

// ParseElcgMode converts "run", "stop" or "auto" into a mode.
func ParseElcgMode(s string) (ElcgMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "run":
		return ElcgRun, nil
	case "stop":
		return ElcgStop, nil
	case "auto", "":
		return ElcgAuto, nil
	default:
		return 0, fmt.Errorf("%w: elcg mode %q", ErrInvalidArgument, s)
	}
}

// SetElcgMode applies the clock gating mode to the graphics and the copy
// engine.
func (e *Engine) SetElcgMode(mode ElcgMode) error {
	if mode < ElcgRun || mode > ElcgAuto {
		return fmt.Errorf("%w: elcg mode %d", ErrInvalidArgument, int(mode))
	}

	e.setElcgMode(mode, hw.GrEngineID)
	e.setElcgMode(mode, hw.Ce2EngineID)

	return nil
}

func (e *Engine) setElcgMode(mode ElcgMode, engine int) {
	bus := e.bus
	reg := hw.ThermGateCtrl(engine)
	gate := bus.Read32(reg)

	switch mode {
	case ElcgRun:
		gate = hw.GateCtrlEngClk(gate, hw.GateCtrlEngClkRun)
		gate = hw.GateCtrlEngPwr(gate, hw.GateCtrlEngPwrAuto)
	case ElcgStop:
		gate = hw.GateCtrlEngClk(gate, hw.GateCtrlEngClkStop)
	case ElcgAuto:
		gate = hw.GateCtrlEngClk(gate, hw.GateCtrlEngClkAuto)
	}

	// 2 * (1 << 9) = 1024 clocks
	gate = hw.GateCtrlIdleFiltExp(gate, hw.IdleFilterExpInit)
	gate = hw.GateCtrlIdleFiltMant(gate, hw.IdleFilterMantInit)
	bus.Write32(reg, gate)

	bus.Write32(hw.ThermFecsIdleFilter,
		hw.IdleFilterValue(bus.Read32(hw.ThermFecsIdleFilter), 0))
	bus.Write32(hw.ThermHubmmuIdleFilter,
		hw.IdleFilterValue(bus.Read32(hw.ThermHubmmuIdleFilter), 0))

	e.log.WithField("engine", engine).Debugf("elcg mode %s", mode)
}
