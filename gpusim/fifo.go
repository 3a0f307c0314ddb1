package gpusim

import (
	"context"
	"fmt"
	"sync"

	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/idgen"
	"github.com/sarchlab/grengine/vidmem"
)

// Fifo is a minimal host channel layer. It owns channel ids, instance
// blocks and address spaces, and records what the engine asked of it.
type Fifo struct {
	mm  *vidmem.Manager
	ids *idgen.Pool

	lock             sync.Mutex
	channels         map[int]*gr.Channel
	activityDisabled int
	torn             []int
	disabled         []int
}

// NewFifo creates a channel layer with room for numChannels channels.
func NewFifo(mm *vidmem.Manager, numChannels int) *Fifo {
	return &Fifo{
		mm:       mm,
		ids:      idgen.NewPool(numChannels),
		channels: make(map[int]*gr.Channel),
	}
}

// Open creates a channel with its own address space.
func (f *Fifo) Open(vpr bool) (*gr.Channel, error) {
	id, err := f.ids.Acquire()
	if err != nil {
		return nil, err
	}

	inst, err := f.mm.Alloc(hw.InstBlockSize)
	if err != nil {
		f.ids.Release(id)
		return nil, fmt.Errorf("instance block: %w", err)
	}

	ch := gr.NewChannel(id, inst, vpr)
	ch.BindAddressSpace(f.mm.NewAddressSpace())
	ch.SetInUse(true)

	f.lock.Lock()
	f.channels[id] = ch
	f.lock.Unlock()

	return ch, nil
}

// Close forgets ch and releases its instance block. The engine context must
// have been freed already.
func (f *Fifo) Close(ch *gr.Channel) {
	f.lock.Lock()
	_, ok := f.channels[ch.ID]
	delete(f.channels, ch.ID)
	f.lock.Unlock()

	if !ok {
		return
	}

	ch.SetInUse(false)
	f.mm.Put(ch.InstBlock)
	f.ids.Release(ch.ID)
}

// DisableEngineActivity stops the scheduler from feeding the engine.
func (f *Fifo) DisableEngineActivity(_ context.Context, engine int) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.activityDisabled++

	return nil
}

// EnableEngineActivity lets the scheduler feed the engine again.
func (f *Fifo) EnableEngineActivity(engine int) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.activityDisabled == 0 {
		return fmt.Errorf("engine %d activity is not disabled", engine)
	}

	f.activityDisabled--

	return nil
}

// ActivityDisabled tells if some caller holds engine activity disabled.
func (f *Fifo) ActivityDisabled() bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.activityDisabled > 0
}

// Channels returns the open channels ordered by id.
func (f *Fifo) Channels() []*gr.Channel {
	f.lock.Lock()
	defer f.lock.Unlock()

	out := make([]*gr.Channel, 0, len(f.channels))
	for id := 0; len(out) < len(f.channels); id++ {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
		}
	}

	return out
}

// FreeChannel tears ch down after a fault. The channel stops being in use;
// its id is kept until Close.
func (f *Fifo) FreeChannel(ch *gr.Channel, wait bool) {
	ch.SetInUse(false)

	f.lock.Lock()
	defer f.lock.Unlock()

	f.torn = append(f.torn, ch.ID)
}

// DisableChannel stops ch from being scheduled.
func (f *Fifo) DisableChannel(_ context.Context, ch *gr.Channel, wait bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.disabled = append(f.disabled, ch.ID)
}

// TornDown returns the ids of channels freed after faults.
func (f *Fifo) TornDown() []int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]int(nil), f.torn...)
}

// Disabled returns the ids of channels the engine disabled.
func (f *Fifo) Disabled() []int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]int(nil), f.disabled...)
}

var _ gr.Scheduler = (*Fifo)(nil)
