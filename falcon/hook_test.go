package falcon

import "github.com/sarchlab/grengine/instrumentation/hooking"

type resultHook struct {
	f func(CommandResult)
}

func (h *resultHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosCommand {
		return
	}

	h.f(ctx.Detail.(CommandResult))
}

func hookFunc(f func(CommandResult)) *resultHook {
	return &resultHook{f: f}
}
