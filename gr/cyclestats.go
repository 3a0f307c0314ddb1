package gr

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/hw"
)

type cyclestatsElem struct {
	buf []byte
	off int
}

func (c cyclestatsElem) word(field int) uint32 {
	return binary.LittleEndian.Uint32(c.buf[c.off+field:])
}

func (c cyclestatsElem) setWord(field int, v uint32) {
	binary.LittleEndian.PutUint32(c.buf[c.off+field:], v)
}

// runCycleStats executes the peek and poke elements of the channel's shared
// buffer starting at offset. It returns the number of elements that touched
// a register. Only register offsets inside the aperture that are word
// aligned are accepted; other elements are marked failed.
func (e *Engine) runCycleStats(ch *Channel, offset uint32) int {
	if !e.features.Cyclestats || offset == 0 {
		return 0
	}

	ch.cyclestatsLock.Lock()
	defer ch.cyclestatsLock.Unlock()

	buf := ch.cyclestats
	if buf == nil {
		return 0
	}

	log := e.log.WithField("chid", ch.ID)
	executed := 0
	off := int(offset)

	for {
		if off < 0 || off+hw.CycleStatsHdrBytes > len(buf) {
			log.WithField("offset", off).Warn("cyclestats walk ran off the buffer")
			break
		}

		el := cyclestatsElem{buf: buf, off: off}
		hdr := el.word(hw.CycleStatsHeader)
		op := hdr & 0xffff
		size := int(hdr >> 16)

		if size < hw.CycleStatsHdrBytes {
			log.WithField("size", size).Warn("cyclestats element too small")
			break
		}

		done := false

		switch op {
		case hw.CycleStatsOpEnd:
			done = true
		case hw.CycleStatsOpBar0Read32, hw.CycleStatsOpBar0Write32:
			if e.cycleStatsAccess(el, op, size) {
				executed++
			} else {
				log.WithFields(logrus.Fields{
					"offset": off,
					"reg":    e.cycleStatsReg(el, size),
				}).Warn("cyclestats element rejected")
			}
		default:
			done = true
		}

		el.setWord(hw.CycleStatsCompleted, 1)

		if done {
			break
		}

		off += size
	}

	return executed
}

func (e *Engine) cycleStatsReg(el cyclestatsElem, size int) uint32 {
	if size < hw.CycleStatsElemBytes || el.off+hw.CycleStatsElemBytes > len(el.buf) {
		return 0
	}

	return el.word(hw.CycleStatsOffset)
}

// cycleStatsAccess performs one peek or poke. It reports false and marks
// the element failed when the element is malformed.
func (e *Engine) cycleStatsAccess(el cyclestatsElem, op uint32, size int) bool {
	if size < hw.CycleStatsElemBytes || el.off+hw.CycleStatsElemBytes > len(el.buf) {
		if el.off+hw.CycleStatsHdrBytes <= len(el.buf) {
			el.setWord(hw.CycleStatsFailed, 1)
		}

		return false
	}

	reg := el.word(hw.CycleStatsOffset)
	bits := el.word(hw.CycleStatsBits)
	first := bits & 0xff
	last := (bits >> 8) & 0xff

	if reg >= hw.Bar0Size || reg%4 != 0 || first > last || last > 31 {
		el.setWord(hw.CycleStatsFailed, 1)
		return false
	}

	mask := uint32((uint64(1)<<(last+1) - 1) &^ (uint64(1)<<first - 1))
	raw := e.bus.Read32(reg)

	switch op {
	case hw.CycleStatsOpBar0Read32:
		el.setWord(hw.CycleStatsData, (raw&mask)>>first)
	case hw.CycleStatsOpBar0Write32:
		var v uint32
		if mask != ^uint32(0) {
			v = raw &^ mask
		}

		v |= (el.word(hw.CycleStatsData) << first) & mask
		e.bus.Write32(reg, v)
	}

	return true
}
