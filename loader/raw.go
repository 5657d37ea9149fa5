// Package loader provides raw binary image loading for CRISP-32 programs.
//
// A CRISP-32 image is a headerless byte string: the assembler's output is
// copied verbatim into guest memory at the load address and the PC starts
// there. There are no relocations and no entry-point record.
package loader

import (
	"fmt"
	"os"

	"github.com/MannyPeterson/crisp32/insts"
)

// DefaultLoadAddr is the conventional load address. The IVT occupies
// guest physical 0x0000..0x07FF and convention reserves 0x0800..0x0FFF.
const DefaultLoadAddr = 0x1000

// Image represents a loaded program ready to be placed in guest memory.
type Image struct {
	// Data contains the raw instruction and data bytes.
	Data []byte

	// LoadAddr is the guest address the image should be copied to; the PC
	// is set to the same address.
	LoadAddr uint32
}

// Instructions returns the number of whole instruction words in the image.
func (img *Image) Instructions() int {
	return len(img.Data) / insts.InstructionSize
}

// Load reads a raw binary at the conventional load address.
func Load(path string) (*Image, error) {
	return LoadAt(path, DefaultLoadAddr)
}

// LoadAt reads a raw binary to be loaded at the given guest address.
func LoadAt(path string, addr uint32) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}

	return &Image{Data: data, LoadAddr: addr}, nil
}
