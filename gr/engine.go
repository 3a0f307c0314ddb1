// Package gr manages the graphics engine of a gk20a GPU: the unit
// topology, the context-switch firmware, the global and per-channel
// context buffers, the golden context image, floorsweeping, the ZBC
// tables and the interrupt path.
package gr

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/poll"
	"github.com/sarchlab/grengine/regbus"
)

// Features are the switches a platform turns on or off.
type Features struct {
	// Cyclestats enables the register peek and poke walk driven by notify
	// interrupts. It executes writes chosen by user space.
	Cyclestats bool

	// VPR allocates protected variants of the global buffers.
	VPR bool

	Timeslice       bool
	ElcgMode        ElcgMode
	MaxComptagMemMB uint32
}

// DefaultFeatures is what a gk20a board runs with.
func DefaultFeatures() Features {
	return Features{
		Timeslice:       true,
		ElcgMode:        ElcgAuto,
		MaxComptagMemMB: 512,
	}
}

// Engine is the graphics engine of one GPU. All engine-wide state lives
// here; channels carry their own contexts.
type Engine struct {
	*hooking.HookableBase

	name    string
	bus     regbus.Bus
	mm      MemoryManager
	sched   Scheduler
	log     *logrus.Entry
	pollCfg poll.Config

	falcons falcon.Pair
	fecs    *falcon.Submitter
	images  falcon.Images
	lists   InitLists

	features     Features
	unhandledLog *rate.Limiter

	initLock sync.Mutex
	swReady  bool
	topo     *Topology
	tiles    TileMap
	cb       cbConfig
	sizes    ctxSizes
	global   globalBuffers
	comptag  comptagStore
	zcull    ZcullInfo

	golden goldenImage
	zbc    zbcTable
	tlb    channelTLB

	isrState atomic.Int32
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// Submitter returns the FECS command submitter. Hooks attached to it see
// every firmware command.
func (e *Engine) Submitter() *falcon.Submitter {
	return e.fecs
}

// Features returns the switches the engine was built with.
func (e *Engine) Features() Features {
	return e.features
}

// Topology returns a copy of the discovered topology, or nil before the
// engine is initialized.
func (e *Engine) Topology() *Topology {
	e.initLock.Lock()
	defer e.initLock.Unlock()

	if e.topo == nil {
		return nil
	}

	return e.topo.Clone()
}

// TileMap returns a copy of the tile map in use.
func (e *Engine) TileMap() TileMap {
	e.initLock.Lock()
	defer e.initLock.Unlock()

	m := e.tiles
	m.Tiles = append([]uint8(nil), e.tiles.Tiles...)

	return m
}

// Ready tells if the software state has been set up.
func (e *Engine) Ready() bool {
	e.initLock.Lock()
	defer e.initLock.Unlock()

	return e.swReady
}
