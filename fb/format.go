package fb

import (
	"github.com/juju/errors"
)

// Format is the storage layout chosen for a pixel depth.
type Format struct {
	Depth        int
	BitsPerPixel int

	Red, Green, Blue, Transp Bitfield
}

var (
	formatRGB565 = Format{
		Depth:        16,
		BitsPerPixel: 16,
		Red:          Bitfield{Offset: 11, Length: 5},
		Green:        Bitfield{Offset: 5, Length: 6},
		Blue:         Bitfield{Offset: 0, Length: 5},
	}

	formatARGB8888 = Format{
		BitsPerPixel: 32,
		Red:          Bitfield{Offset: 16, Length: 8},
		Green:        Bitfield{Offset: 8, Length: 8},
		Blue:         Bitfield{Offset: 0, Length: 8},
		Transp:       Bitfield{Offset: 24, Length: 8},
	}
)

// FormatForDepth picks the storage layout for depth. Only 16, 24 and 32 are
// supported by the display controller.
func FormatForDepth(depth int) (Format, error) {
	switch depth {
	case 16:
		return formatRGB565, nil
	case 24, 32:
		f := formatARGB8888
		f.Depth = depth
		return f, nil
	}
	return Format{}, errors.NotSupportedf("pixel depth %d", depth)
}

// Apply writes the layout into vinfo.
func (f Format) Apply(vinfo *VarScreeninfo) {
	vinfo.BitsPerPixel = uint32(f.BitsPerPixel)
	vinfo.Red = f.Red
	vinfo.Green = f.Green
	vinfo.Blue = f.Blue
	vinfo.Transp = f.Transp
}

// BytesPerPixel returns the storage size of one pixel.
func (f Format) BytesPerPixel() int { return f.BitsPerPixel / 8 }

// AlignedStride returns the pitch in bytes of a width pixel wide surface,
// the width first being rounded up to a multiple of 32 pixels.
func AlignedStride(width, bitsPerPixel uint) uint {
	const align = 32
	alignedWidth := (width + (align - 1)) &^ (align - 1)
	return (alignedWidth*bitsPerPixel + 7) / 8
}

// Pixel packs a 16 bit per channel color, as returned by color.Color,
// into f. Transparency is set opaque when the format has it.
func (f Format) Pixel(r, g, b uint32) uint32 {
	pack := func(v uint32, bf Bitfield) uint32 {
		if bf.Length == 0 {
			return 0
		}
		return (v >> (16 - bf.Length)) << bf.Offset
	}
	p := pack(r, f.Red) | pack(g, f.Green) | pack(b, f.Blue)
	if f.Transp.Length > 0 {
		p |= (1<<f.Transp.Length - 1) << f.Transp.Offset
	}
	return p
}
