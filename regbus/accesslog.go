package regbus

import (
	"sync"

	"github.com/sarchlab/grengine/instrumentation/hooking"
)

// AccessLog is a hook that keeps every register access in order.
type AccessLog struct {
	lock    sync.Mutex
	entries []Access
	filter  func(Access) bool
}

// NewAccessLog creates a log that keeps all accesses.
func NewAccessLog() *AccessLog {
	return &AccessLog{}
}

// NewFilteredAccessLog creates a log that only keeps accesses for which
// keep returns true.
func NewFilteredAccessLog(keep func(Access) bool) *AccessLog {
	return &AccessLog{filter: keep}
}

// Func records the access carried by ctx.
func (l *AccessLog) Func(ctx hooking.HookCtx) {
	a, ok := ctx.Item.(Access)
	if !ok {
		return
	}

	if l.filter != nil && !l.filter(a) {
		return
	}

	l.lock.Lock()
	l.entries = append(l.entries, a)
	l.lock.Unlock()
}

// Entries returns a copy of the recorded accesses.
func (l *AccessLog) Entries() []Access {
	l.lock.Lock()
	defer l.lock.Unlock()

	out := make([]Access, len(l.entries))
	copy(out, l.entries)

	return out
}

// Writes returns the recorded writes to addr, in order.
func (l *AccessLog) Writes(addr uint32) []uint32 {
	l.lock.Lock()
	defer l.lock.Unlock()

	var values []uint32
	for _, e := range l.entries {
		if e.Kind == AccessWrite && e.Addr == addr {
			values = append(values, e.Value)
		}
	}

	return values
}

// Clear drops all recorded accesses.
func (l *AccessLog) Clear() {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.entries = nil
}
