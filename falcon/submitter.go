package falcon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/regbus"
)

// ErrTimeout is returned when a mailbox never reached the success or the
// failure value before the deadline.
var ErrTimeout = errors.New("falcon: mailbox wait timed out")

// ErrFailed is returned when the microcontroller reported failure.
var ErrFailed = errors.New("falcon: microcontroller reported failure")

// HookPosCommand fires after a method completes. The item is the Method and
// the detail a CommandResult.
var HookPosCommand = &hooking.HookPos{Name: "FalconCommand"}

// CommandResult is what a finished method produced.
type CommandResult struct {
	Mailbox uint32
	Err     error
}

// A Submitter serializes control-plane requests to the FECS. The lock is
// held from the first mailbox write until the result has been read, so two
// requests never interleave on the bus.
type Submitter struct {
	*hooking.HookableBase

	lock sync.Mutex
	bus  regbus.Bus
	poll poll.Config
}

// NewSubmitter creates a Submitter.
func NewSubmitter(bus regbus.Bus, cfg poll.Config) *Submitter {
	return &Submitter{
		HookableBase: hooking.NewHookableBase(),
		bus:          bus,
		poll:         cfg,
	}
}

// Submit issues m and waits on mailbox 0 for its outcome. The last mailbox
// value read is returned, which is how size queries report their answer.
func (s *Submitter) Submit(ctx context.Context, m Method) (uint32, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if m.MailboxID != 0 {
		s.bus.Write32(hw.FecsMailbox(m.MailboxID), m.MailboxData)
	}

	s.bus.Write32(hw.FecsMailboxClear(0), m.MailboxClear)
	s.bus.Write32(hw.FecsMethodData, m.Data)
	s.bus.Write32(hw.FecsMethodPush, m.Addr)

	v, err := s.wait(ctx, 0, m.Ok, m.Fail)
	if err != nil {
		err = fmt.Errorf("%s: %w", m.Name, err)
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosCommand,
		Item:   m,
		Detail: CommandResult{Mailbox: v, Err: err},
	})

	return v, err
}

// Wait polls mailbox id until ok or fail matches. It takes the submission
// lock, so it never observes a mailbox in the middle of another request.
func (s *Submitter) Wait(ctx context.Context, id int, ok, fail Predicate) (uint32, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.wait(ctx, id, ok, fail)
}

func (s *Submitter) wait(ctx context.Context, id int, ok, fail Predicate) (uint32, error) {
	var v uint32

	err := poll.Until(ctx, s.poll, func() (bool, error) {
		v = s.bus.Read32(hw.FecsMailbox(id))

		done := ok.Match(v)
		if fail.Match(v) {
			return false, fmt.Errorf("%w: mailbox %d = %#x", ErrFailed, id, v)
		}

		return done, nil
	})

	if errors.Is(err, poll.ErrTimeout) {
		return v, fmt.Errorf("%w: mailbox %d = %#x", ErrTimeout, id, v)
	}

	return v, err
}
