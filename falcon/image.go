package falcon

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// An Image is the firmware of one microcontroller.
type Image struct {
	Inst []uint32
	Data []uint32
}

// Images holds the firmware of both context-switch microcontrollers.
type Images struct {
	Fecs  Image
	Gpccs Image
}

// ReadWords reads little-endian words until EOF. A trailing partial word is
// an error.
func ReadWords(r io.Reader) ([]uint32, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("falcon: image size %d is not a multiple of 4", len(raw))
	}

	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	return words, nil
}

// LoadImage reads an instruction file and a data file.
func LoadImage(instPath, dataPath string) (Image, error) {
	inst, err := readWordsFile(instPath)
	if err != nil {
		return Image{}, err
	}

	data, err := readWordsFile(dataPath)
	if err != nil {
		return Image{}, err
	}

	return Image{Inst: inst, Data: data}, nil
}

func readWordsFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	words, err := ReadWords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return words, nil
}
