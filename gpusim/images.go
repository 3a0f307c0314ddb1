package gpusim

import (
	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/hw"
)

// SyntheticImages makes firmware images that fit the falcons of chip. The
// simulated firmware does not execute them; their size exercises the
// loader.
func SyntheticImages(chip Chip) falcon.Images {
	imemWords := int(chip.ImemBlocks) * hw.FalconImemWordsPerBlock
	dmemWords := int(chip.DmemBlocks) * hw.FalconImemWordsPerBlock

	return falcon.Images{
		Fecs:  syntheticImage(0xfec5, imemWords/2+7, dmemWords/4),
		Gpccs: syntheticImage(0x6cc5, imemWords/4+3, dmemWords/8),
	}
}

func syntheticImage(seed uint32, inst, data int) falcon.Image {
	img := falcon.Image{
		Inst: make([]uint32, inst),
		Data: make([]uint32, data),
	}

	x := seed
	for i := range img.Inst {
		x = x*1664525 + 1013904223
		img.Inst[i] = x
	}

	for i := range img.Data {
		x = x*1664525 + 1013904223
		img.Data[i] = x
	}

	return img
}
