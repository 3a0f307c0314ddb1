package gr

// ZbcSlotState is one used ZBC table entry.
type ZbcSlotState struct {
	Index    int
	Format   uint32
	RefCount int
}

// Snapshot is a point-in-time view of the engine for monitoring.
type Snapshot struct {
	Name     string
	Ready    bool
	IsrState string
	Features Features

	Topology  *Topology
	TileMap   TileMap
	RowOffset int

	GoldenImageSize uint32
	ZcullImageSize  uint32
	PmImageSize     uint32
	GoldenCaptured  bool
	GoldenCaptures  int

	ComptagLines uint32

	ZbcColors []ZbcSlotState
	ZbcDepths []ZbcSlotState
}

// Snapshot collects the engine state. Each part is read under its own
// lock, so the parts are consistent individually but not with each other.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Name:     e.name,
		IsrState: e.IsrState().String(),
		Features: e.features,
	}

	e.initLock.Lock()
	s.Ready = e.swReady
	if e.topo != nil {
		s.Topology = e.topo.Clone()
	}
	s.TileMap = TileMap{
		Tiles:     append([]uint8(nil), e.tiles.Tiles...),
		RowOffset: e.tiles.RowOffset,
	}
	s.RowOffset = e.tiles.RowOffset
	s.GoldenImageSize = e.sizes.golden
	s.ZcullImageSize = e.sizes.zcull
	s.PmImageSize = e.sizes.pm
	s.ComptagLines = e.comptag.lines
	e.initLock.Unlock()

	e.golden.lock.Lock()
	s.GoldenCaptured = e.golden.initialized
	s.GoldenCaptures = e.golden.captures
	e.golden.lock.Unlock()

	e.zbc.lock.Lock()
	s.ZbcColors = usedZbcSlots(e.zbc.colors[:e.zbc.maxUsedColor])
	s.ZbcDepths = usedZbcSlots(e.zbc.depths[:e.zbc.maxUsedDepth])
	e.zbc.lock.Unlock()

	return s
}

func usedZbcSlots(slots []zbcSlot) []ZbcSlotState {
	out := make([]ZbcSlotState, 0, len(slots))
	for i, sl := range slots {
		out = append(out, ZbcSlotState{
			Index:    i,
			Format:   sl.entry.Format,
			RefCount: sl.ref,
		})
	}

	return out
}
