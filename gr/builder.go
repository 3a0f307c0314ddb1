package gr

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/regbus"
)

// Builder can build graphics engines.
type Builder struct {
	bus      regbus.Bus
	mm       MemoryManager
	sched    Scheduler
	pollCfg  poll.Config
	images   falcon.Images
	lists    InitLists
	features Features
	logger   *logrus.Logger
	tiles    TileMap
}

// MakeBuilder returns a Builder with the default features and timing.
func MakeBuilder() Builder {
	return Builder{
		pollCfg:  poll.DefaultConfig(),
		features: DefaultFeatures(),
	}
}

// WithBus sets the register bus of the engine.
func (b Builder) WithBus(bus regbus.Bus) Builder {
	b.bus = bus
	return b
}

// WithMemory sets the memory manager that backs the context buffers.
func (b Builder) WithMemory(mm MemoryManager) Builder {
	b.mm = mm
	return b
}

// WithScheduler sets the channel layer.
func (b Builder) WithScheduler(sched Scheduler) Builder {
	b.sched = sched
	return b
}

// WithPollConfig sets the timing of every bounded wait.
func (b Builder) WithPollConfig(cfg poll.Config) Builder {
	b.pollCfg = cfg
	return b
}

// WithImages sets the context-switch firmware.
func (b Builder) WithImages(images falcon.Images) Builder {
	b.images = images
	return b
}

// WithInitLists sets the register initializations of the chip.
func (b Builder) WithInitLists(lists InitLists) Builder {
	b.lists = lists
	return b
}

// WithFeatures sets the feature switches.
func (b Builder) WithFeatures(f Features) Builder {
	b.features = f
	return b
}

// WithLogger sets the logger. The standard logrus logger is used otherwise.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.logger = l
	return b
}

// WithTileMap seeds the tile map. It is kept if it fits the discovered
// topology and recomputed otherwise.
func (b Builder) WithTileMap(m TileMap) Builder {
	b.tiles = m
	return b
}

// Build creates the engine. It does not touch the hardware; call
// InitSupport for that.
func (b Builder) Build(name string) *Engine {
	b.mustBeComplete()

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Engine{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		bus:          b.bus,
		mm:           b.mm,
		sched:        b.sched,
		log:          logger.WithField("engine", name),
		pollCfg:      b.pollCfg,
		falcons:      falcon.NewPair(b.bus),
		fecs:         falcon.NewSubmitter(b.bus, b.pollCfg),
		images:       b.images,
		lists:        b.lists,
		features:     b.features,
		unhandledLog: rate.NewLimiter(rate.Every(time.Second), 10),
		tiles:        b.tiles,
	}

	return e
}

func (b Builder) mustBeComplete() {
	if b.bus == nil {
		panic("register bus is not given")
	}

	if b.mm == nil {
		panic("memory manager is not given")
	}

	if b.sched == nil {
		panic("scheduler is not given")
	}
}
