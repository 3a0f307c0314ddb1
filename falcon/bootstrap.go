package falcon

import (
	"context"
	"fmt"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
)

// HandshakeInitComplete is the value the FECS leaves in mailbox 0 once its
// firmware is up.
const HandshakeInitComplete = 1

// WatchdogTimeout is programmed right after the handshake.
const WatchdogTimeout = 0x7fffffff

// Pair is the FECS and GPCCS of one graphics engine.
type Pair struct {
	Fecs  *Falcon
	Gpccs *Falcon
}

// NewPair creates the two microcontrollers at their usual bases.
func NewPair(bus regbus.Bus) Pair {
	return Pair{
		Fecs:  New("FECS", hw.FecsBase, bus),
		Gpccs: New("GPCCS", hw.GpccsBase, bus),
	}
}

// Bootstrap loads the images, starts both microcontrollers and waits for
// the handshake. The handshake wait and the watchdog programming run under
// the submission lock as one request. A timeout here is fatal for the
// caller; it is not retried.
func (p Pair) Bootstrap(ctx context.Context, s *Submitter, images Images) error {
	p.Gpccs.LoadDMEM(images.Gpccs.Data)
	p.Fecs.LoadDMEM(images.Fecs.Data)
	p.Gpccs.LoadIMEM(images.Gpccs.Inst)
	p.Fecs.LoadIMEM(images.Fecs.Inst)

	p.start(s.bus)

	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.wait(ctx, 0, Eq(HandshakeInitComplete), NoCheck())
	if err != nil {
		return fmt.Errorf("falcon handshake: %w", err)
	}

	s.bus.Write32(hw.FecsMailboxClear(0), 0xffffffff)
	s.bus.Write32(hw.FecsMethodData, WatchdogTimeout)
	s.bus.Write32(hw.FecsMethodPush, hw.MethodSetWatchdogTimeout)

	return nil
}

func (p Pair) start(bus regbus.Bus) {
	bus.Write32(hw.FecsMailbox(0), ^uint32(0))

	p.Gpccs.clearRequireCtx()
	p.Fecs.clearRequireCtx()

	p.Gpccs.startCPU()
	p.Fecs.startCPU()
}
