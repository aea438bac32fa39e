package fb

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type (
	// FixScreeninfo is struct fb_fix_screeninfo.
	FixScreeninfo struct {
		ID           [16]byte
		SmemStart    uintptr
		SmemLen      uint32
		Type         uint32
		TypeAux      uint32
		Visual       uint32
		XPanStep     uint16
		YPanStep     uint16
		YWrapStep    uint16
		_            uint16
		LineLength   uint32
		MMIOStart    uintptr
		MMIOLen      uint32
		Accel        uint32
		Capabilities uint16
		Reserved     [2]uint16
	}

	// Bitfield is struct fb_bitfield.
	Bitfield struct {
		Offset   uint32
		Length   uint32
		MSBRight uint32
	}

	// VarScreeninfo is struct fb_var_screeninfo.
	VarScreeninfo struct {
		XRes         uint32
		YRes         uint32
		XResVirtual  uint32
		YResVirtual  uint32
		XOffset      uint32
		YOffset      uint32
		BitsPerPixel uint32
		Grayscale    uint32
		Red          Bitfield
		Green        Bitfield
		Blue         Bitfield
		Transp       Bitfield
		Nonstd       uint32
		Activate     uint32
		Height       uint32
		Width        uint32
		AccelFlags   uint32

		PixClock    uint32
		LeftMargin  uint32
		RightMargin uint32
		UpperMargin uint32
		LowerMargin uint32
		HSyncLen    uint32
		VSyncLen    uint32
		Sync        uint32
		VMode       uint32
		Rotate      uint32
		Colorspace  uint32
		Reserved    [4]uint32
	}
)

const (
	// VendorTag prefixes the id of every MSM display controller.
	VendorTag = "msmfb"

	// DefaultHWVersion is assumed when the id carries no usable version.
	DefaultHWVersion = 0x30000
)

// Name returns the id with its trailing null bytes removed.
func (f *FixScreeninfo) Name() string {
	id := f.ID[:]
	if i := bytes.IndexByte(id, 0); i >= 0 {
		id = id[:i]
	}
	return string(id)
}

// IsMSM reports whether id names an MSM display controller.
func IsMSM(id string) bool {
	return len(id) >= len(VendorTag) && id[:len(VendorTag)] == VendorTag
}

// HWVersion extracts the hardware revision from an id of the form
// msmfb<panel>_<hexversion>, e.g. "msmfb31_40001".
func HWVersion(id string) (int, error) {
	if !IsMSM(id) {
		return 0, errors.NotValidf("framebuffer id %q", id)
	}
	rest := id[len(VendorTag):]
	i := strings.IndexByte(rest, '_')
	if i <= 0 {
		return 0, errors.NotValidf("framebuffer id %q", id)
	}
	if _, err := strconv.ParseUint(rest[:i], 10, 32); err != nil {
		return 0, errors.NotValidf("panel number in %q", id)
	}
	v, err := strconv.ParseUint(rest[i+1:], 16, 31)
	if err != nil {
		return 0, errors.NotValidf("hardware version in %q", id)
	}
	return int(v), nil
}
