package gpusim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/regbus"
	"github.com/sarchlab/grengine/vidmem"
)

// Platform is a simulated device with memory, a channel layer and the
// graphics engine driving it.
type Platform struct {
	Device *Device
	Bus    *regbus.HookedBus
	Memory *vidmem.Manager
	Fifo   *Fifo
	Engine *gr.Engine
}

// Builder can build platforms.
type Builder struct {
	chip              Chip
	features          gr.Features
	pollCfg           poll.Config
	logger            *logrus.Logger
	lists             *gr.InitLists
	capacity          uint64
	protectedCapacity uint64
	numChannels       int
}

// MakeBuilder returns a Builder for a gk20a with 128 MiB of memory and 128
// channels.
func MakeBuilder() Builder {
	return Builder{
		chip:        Gk20a(),
		features:    gr.DefaultFeatures(),
		pollCfg:     poll.DefaultConfig(),
		capacity:    128 << 20,
		numChannels: 128,
	}
}

// WithChip sets the chip to simulate.
func (b Builder) WithChip(chip Chip) Builder {
	b.chip = chip
	return b
}

// WithFeatures sets the engine feature switches.
func (b Builder) WithFeatures(f gr.Features) Builder {
	b.features = f
	return b
}

// WithPollConfig sets the timing of the engine's bounded waits.
func (b Builder) WithPollConfig(cfg poll.Config) Builder {
	b.pollCfg = cfg
	return b
}

// WithLogger sets the logger of the engine.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.logger = l
	return b
}

// WithInitLists replaces the register initializations of the chip.
func (b Builder) WithInitLists(lists gr.InitLists) Builder {
	b.lists = &lists
	return b
}

// WithMemory sets the size of the normal and the protected memory.
func (b Builder) WithMemory(capacity, protected uint64) Builder {
	b.capacity = capacity
	b.protectedCapacity = protected
	return b
}

// WithNumChannels sets how many channels can be open at once.
func (b Builder) WithNumChannels(n int) Builder {
	b.numChannels = n
	return b
}

// Build creates the platform. The engine is not initialized.
func (b Builder) Build(name string) *Platform {
	if err := b.chip.Validate(); err != nil {
		panic(err)
	}

	lists := DefaultInitLists()
	if b.lists != nil {
		lists = *b.lists
	}

	dev := NewDevice(b.chip)
	bus := regbus.NewHookedBus(dev)

	mm := vidmem.MakeBuilder().
		WithCapacity(b.capacity).
		WithProtectedCapacity(b.protectedCapacity).
		Build(name + ".VidMem")

	fifo := NewFifo(mm, b.numChannels)
	dev.Fecs().AttachMemory(mm.Storage(), fifo.Channels)

	engine := gr.MakeBuilder().
		WithBus(bus).
		WithMemory(mm).
		WithScheduler(fifo).
		WithPollConfig(b.pollCfg).
		WithImages(SyntheticImages(b.chip)).
		WithInitLists(lists).
		WithFeatures(b.features).
		WithLogger(b.logger).
		Build(name + ".GR")

	return &Platform{
		Device: dev,
		Bus:    bus,
		Memory: mm,
		Fifo:   fifo,
		Engine: engine,
	}
}

// DefaultInitLists are the register initializations the simulated chip
// ships with.
func DefaultInitLists() gr.InitLists {
	return gr.InitLists{
		NonCtxLoad: []gr.RegInit{
			{Addr: hw.LtcTstgSetMgmt, Value: hw.TstgSetMaxWaysEvict(0, hw.MaxWaysEvictSingleFbp)},
		},
		CtxLoad: []gr.RegInit{
			{Addr: hw.GrFeGoIdleTimeout, Value: 0x800},
		},
		BundleInit: []gr.RegInit{
			{Addr: 0x00001000, Value: 0x00000004},
			{Addr: 0x00001001, Value: 0x00000004},
			{Addr: hw.GoIdleBundle, Value: 0x00000000},
			{Addr: 0x00001005, Value: 0x00000001},
		},
		MethodInit: []gr.RegInit{
			{Addr: 0x0000, Value: 0x00000080},
			{Addr: 0x0001, Value: 0x00000080},
			{Addr: 0x0002, Value: 0x00000000},
		},
	}
}

// Boot initializes the engine.
func (p *Platform) Boot(ctx context.Context) error {
	return p.Engine.InitSupport(ctx)
}

// OpenChannel opens a channel and allocates an object of class on it.
func (p *Platform) OpenChannel(ctx context.Context, class uint32, vpr bool) (*gr.Channel, error) {
	ch, err := p.Fifo.Open(vpr)
	if err != nil {
		return nil, err
	}

	if err := p.Engine.AllocObjCtx(ctx, ch, class); err != nil {
		p.Engine.FreeChannelCtx(ch)
		p.Fifo.Close(ch)

		return nil, fmt.Errorf("channel %d: %w", ch.ID, err)
	}

	return ch, nil
}

// OpenChannels opens n channels concurrently.
func (p *Platform) OpenChannels(ctx context.Context, n int, class uint32) ([]*gr.Channel, error) {
	chs := make([]*gr.Channel, n)

	g, ctx := errgroup.WithContext(ctx)
	for i := range chs {
		i := i
		g.Go(func() error {
			ch, err := p.OpenChannel(ctx, class, false)
			chs[i] = ch

			return err
		})
	}

	if err := g.Wait(); err != nil {
		for _, ch := range chs {
			if ch != nil {
				p.CloseChannel(context.Background(), ch)
			}
		}

		return nil, err
	}

	return chs, nil
}

// CloseChannel frees the object, the engine context and the channel.
func (p *Platform) CloseChannel(ctx context.Context, ch *gr.Channel) {
	p.Engine.FreeObjCtx(ctx, ch)
	p.Engine.FreeChannelCtx(ch)
	p.Fifo.Close(ch)
	p.Engine.FlushChannelTLB()
}

// Interrupt raises t on the device and runs the interrupt handler.
func (p *Platform) Interrupt(t Trap) {
	p.Device.RaiseInterrupt(t)
	p.Engine.ISR()
}

// ChannelCtx is the current-context word the device reports while ch is
// loaded.
func ChannelCtx(ch *gr.Channel) uint32 {
	return hw.CurrentCtx(ch.InstPtr(), true)
}
