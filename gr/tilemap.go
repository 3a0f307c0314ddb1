package gr

import "fmt"

var rowOffsetPrimes = []int{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61,
}

// RowOffset returns the row stride used when writing tile tables for a given
// number of tiles.
func RowOffset(tpcCount int) int {
	switch tpcCount {
	case 15:
		return 6
	case 14:
		return 5
	case 13:
		return 2
	case 11:
		return 7
	case 10:
		return 6
	case 7, 5:
		return 1
	}

	if tpcCount == 3 {
		return 2
	}

	if tpcCount < 3 {
		return 1
	}

	for _, p := range rowOffsetPrimes[1:] {
		if tpcCount%p != 0 {
			return p
		}
	}

	return 3
}

// TileMap assigns every screen tile to a gpc. Tiles[i] is the gpc of tile
// i; the length is the total tpc count.
type TileMap struct {
	Tiles     []uint8
	RowOffset int
}

// Tile returns the gpc of tile i, or zero past the end of the map.
func (m TileMap) Tile(i int) uint32 {
	if i < 0 || i >= len(m.Tiles) {
		return 0
	}

	return uint32(m.Tiles[i])
}

// Counts returns how many tiles each of gpcCount gpcs received.
func (m TileMap) Counts(gpcCount int) []int {
	counts := make([]int, gpcCount)
	for _, g := range m.Tiles {
		if int(g) < gpcCount {
			counts[g]++
		}
	}

	return counts
}

// fits reports whether m can be kept for topology t.
func (m TileMap) fits(t *Topology) bool {
	if len(m.Tiles) == 0 || len(m.Tiles) != t.TpcCount {
		return false
	}

	for _, g := range m.Tiles {
		if int(g) >= t.GpcCount {
			return false
		}
	}

	counts := m.Counts(t.GpcCount)
	for gpc, n := range counts {
		if n != t.GpcTpcCount[gpc] {
			return false
		}
	}

	return true
}

// ComputeTileMap spreads the tiles over the gpcs in proportion to their tpc
// counts. Gpcs are visited in descending tpc order and each keeps a running
// error term; a gpc receives a tile whenever twice its error reaches the
// common denominator.
func ComputeTileMap(t *Topology) (TileMap, error) {
	if t.GpcCount == 0 || t.TpcCount == 0 {
		return TileMap{}, fmt.Errorf("%w: empty topology", ErrInvalidArgument)
	}

	sorted := append([]int(nil), t.GpcTpcCount...)
	gpcOf := make([]int, t.GpcCount)
	for i := range gpcOf {
		gpcOf[i] = i
	}

	for swapped := true; swapped; {
		swapped = false
		for i := 0; i < t.GpcCount-1; i++ {
			if sorted[i+1] > sorted[i] {
				sorted[i], sorted[i+1] = sorted[i+1], sorted[i]
				gpcOf[i], gpcOf[i+1] = gpcOf[i+1], gpcOf[i]
				swapped = true
			}
		}
	}

	maxTpc := sorted[0]

	mul := 1
	if (t.GpcCount*maxTpc)&1 != 0 {
		mul = 2
	}

	denom := t.GpcCount * maxTpc * mul

	frac := make([]int, t.GpcCount)
	runErr := make([]int, t.GpcCount)
	for i, n := range sorted {
		frac[i] = n * t.GpcCount * mul
		if n != 0 {
			runErr[i] = frac[i] + i*maxTpc*mul - denom/2
		} else {
			runErr[i] = frac[i]
		}
	}

	tiles := make([]uint8, 0, t.TpcCount)
	for len(tiles) < t.TpcCount {
		for i := 0; i < t.GpcCount && len(tiles) < t.TpcCount; i++ {
			if runErr[i]*2 >= denom {
				tiles = append(tiles, uint8(gpcOf[i]))
				runErr[i] += frac[i] - denom
			} else {
				runErr[i] += frac[i]
			}
		}
	}

	return TileMap{
		Tiles:     tiles,
		RowOffset: RowOffset(t.TpcCount),
	}, nil
}
