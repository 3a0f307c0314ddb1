package gpusim

import (
	"sync"

	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/regbus"
	"github.com/sarchlab/grengine/vidmem"
)

// FecsCommand is one method the firmware model received.
type FecsCommand struct {
	Method uint32
	Data   uint32
}

// methodFailValue is what the firmware leaves in mailbox 0 when a method
// fails. Methods that are not listed cannot report failure.
var methodFailValue = map[uint32]uint32{
	hw.MethodBindPointer:   0x20,
	hw.MethodWfiGoldenSave: hw.CtxswMailboxValueFail,
}

// FecsModel answers the context-switch firmware protocol: the handshake
// after start, image size discovery, channel binds and golden saves.
type FecsModel struct {
	regs *regbus.RegFile
	chip Chip

	lock     sync.Mutex
	started  bool
	commands []FecsCommand
	saves    int
	failing  map[uint32]bool
	hanging  map[uint32]bool

	channels func() []*gr.Channel
	storage  *vidmem.Storage
}

func newFecsModel(regs *regbus.RegFile, chip Chip) *FecsModel {
	f := &FecsModel{
		regs:    regs,
		chip:    chip,
		failing: make(map[uint32]bool),
		hanging: make(map[uint32]bool),
	}

	regs.MapIO(hw.FecsBase+hw.FalconCpuctl, hw.FecsBase+hw.FalconCpuctl, nil,
		func(_ uint32, v uint32) {
			if v&hw.FalconCpuctlStartCPU == 0 {
				return
			}

			f.lock.Lock()
			f.started = true
			f.lock.Unlock()

			regs.Poke(hw.FecsMailbox(0), falcon.HandshakeInitComplete)
		})

	regs.MapIO(hw.FecsMailboxClear(0), hw.FecsMailboxClear(0), nil,
		func(_ uint32, v uint32) {
			regs.Poke(hw.FecsMailbox(0), regs.Peek(hw.FecsMailbox(0))&^v)
		})

	regs.MapIO(hw.FecsMethodPush, hw.FecsMethodPush, nil,
		func(_ uint32, method uint32) {
			f.push(method, regs.Peek(hw.FecsMethodData))
		})

	return f
}

// AttachMemory lets golden saves reach the context images of channels.
func (f *FecsModel) AttachMemory(storage *vidmem.Storage, channels func() []*gr.Channel) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.storage = storage
	f.channels = channels
}

// Fail makes method report failure from now on.
func (f *FecsModel) Fail(method uint32) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.failing[method] = true
}

// Hang makes method never complete from now on.
func (f *FecsModel) Hang(method uint32) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.hanging[method] = true
}

// Heal undoes Fail and Hang.
func (f *FecsModel) Heal() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.failing = make(map[uint32]bool)
	f.hanging = make(map[uint32]bool)
}

// Started tells if the firmware was started.
func (f *FecsModel) Started() bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.started
}

// Commands returns the methods received so far.
func (f *FecsModel) Commands() []FecsCommand {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]FecsCommand(nil), f.commands...)
}

// Saves returns how many golden saves completed.
func (f *FecsModel) Saves() int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.saves
}

func (f *FecsModel) push(method, data uint32) {
	f.lock.Lock()
	f.commands = append(f.commands, FecsCommand{Method: method, Data: data})
	hang := f.hanging[method]
	fail := f.failing[method]
	f.lock.Unlock()

	if hang {
		return
	}

	if fail {
		if v, ok := methodFailValue[method]; ok {
			f.regs.Poke(hw.FecsMailbox(0), v)
		}

		return
	}

	switch method {
	case hw.MethodBindPointer:
		f.regs.Poke(hw.FecsCurrentCtx, data)
		f.reply(0x10)
	case hw.MethodWfiGoldenSave:
		f.saveGolden(data)
		f.reply(hw.CtxswMailboxValuePass)
	case hw.MethodDiscoverImageSize:
		f.reply(f.chip.Images.Golden)
	case hw.MethodDiscoverZcullImageSize:
		f.reply(f.chip.Images.Zcull)
	case hw.MethodDiscoverPmImageSize:
		f.reply(f.chip.Images.Pm)
	}
}

func (f *FecsModel) reply(v uint32) {
	f.regs.Poke(hw.FecsMailbox(0), f.regs.Peek(hw.FecsMailbox(0))|v)
}

// saveGolden writes the engine state words behind the header of the image
// the instance block of the bound channel points at.
func (f *FecsModel) saveGolden(currCtx uint32) {
	f.lock.Lock()
	storage, channels := f.storage, f.channels
	f.lock.Unlock()

	if storage == nil || channels == nil {
		return
	}

	ch := findChannel(channels(), hw.CurrentCtxPtr(currCtx))
	if ch == nil {
		return
	}

	lo := ch.InstBlock.Read32(hw.InstGrWfiTarget)
	hi := ch.InstBlock.Read32(hw.InstGrWfiPtrHi)
	va := uint64(lo&^0xfff) | uint64(hi&0xff)<<32

	as := ch.AddressSpace()
	if as == nil {
		return
	}

	pa, ok := as.Translate(va)
	if !ok {
		return
	}

	for off := uint64(hw.CtxHeaderBytes); off < uint64(f.chip.Images.Golden); off += 4 {
		if err := storage.Write32(pa+off, stateWord(off)); err != nil {
			return
		}
	}

	f.lock.Lock()
	f.saves++
	f.lock.Unlock()
}

func findChannel(channels []*gr.Channel, ptr uint32) *gr.Channel {
	for _, ch := range channels {
		if ch.InUse() && ch.InstPtr() == ptr {
			return ch
		}
	}

	return nil
}

// stateWord is the simulated engine state at offset of a context image.
func stateWord(off uint64) uint32 {
	return uint32(off)*0x9e3779b1 ^ 0x5a5a5a5a
}
