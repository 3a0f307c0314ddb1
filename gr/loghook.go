package gr

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/regbus"
)

// A LogHook prints the events of an engine, its firmware submitter and its
// register bus through a logger.
type LogHook struct {
	*logrus.Logger

	// Registers also logs every register access at trace level.
	Registers bool
}

// NewLogHook creates a LogHook that writes to logger.
func NewLogHook(logger *logrus.Logger) *LogHook {
	return &LogHook{Logger: logger}
}

// Func writes one line for the event.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosInterrupt:
		h.logInterrupt(ctx)
	case HookPosGoldenCapture:
		ch := ctx.Item.(*Channel)
		h.WithField("chid", ch.ID).Info("golden image captured")
	case falcon.HookPosCommand:
		h.logCommand(ctx)
	case regbus.HookPosRead, regbus.HookPosWrite:
		if h.Registers {
			a := ctx.Item.(regbus.Access)
			h.Tracef("%s 0x%08x 0x%08x", a.Kind, a.Addr, a.Value)
		}
	}
}

func (h *LogHook) logInterrupt(ctx hooking.HookCtx) {
	r := ctx.Detail.(IsrReport)

	entry := h.WithFields(logrus.Fields{
		"chid":      r.ChannelID,
		"intr":      fmt.Sprintf("0x%08x", r.Intr),
		"unhandled": fmt.Sprintf("0x%08x", r.Unhandled),
		"reset":     r.Reset,
	})

	if r.Err != nil {
		entry.WithError(r.Err).Warn("interrupt")
		return
	}

	entry.Debug("interrupt")
}

func (h *LogHook) logCommand(ctx hooking.HookCtx) {
	m := ctx.Item.(falcon.Method)
	res := ctx.Detail.(falcon.CommandResult)

	entry := h.WithField("method", m.Name).
		WithField("mailbox", fmt.Sprintf("0x%08x", res.Mailbox))

	if res.Err != nil {
		entry.WithError(res.Err).Error("fecs command failed")
		return
	}

	entry.Debug("fecs command")
}

var _ hooking.Hook = (*LogHook)(nil)
