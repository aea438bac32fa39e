package fb

import (
	"unsafe"

	"github.com/juju/errors"
)

// The MDP cursor is a fixed 64x64 ARGB8888 image.
const (
	CursorWidth  = 64
	CursorHeight = 64
	CursorDepth  = 32
)

// What a cursor update changes (FB_CUR_SET*).
const (
	CursorSetImage = 1 << iota
	CursorSetPos
	CursorSetHot
	CursorSetCmap
	CursorSetShape
	CursorSetSize

	CursorSetAll = 0xff
)

type (
	sysCmap struct {
		start, len               uint32
		red, green, blue, transp uintptr
	}

	sysImage struct {
		dx, dy, width, height uint32
		fgColor, bgColor      uint32
		depth                 uint8
		data                  uintptr
		cmap                  sysCmap
	}

	sysCurpos struct {
		x, y uint16
	}

	sysCursor struct {
		set, enable, rop uint16
		mask             uintptr
		hot              sysCurpos
		image            sysImage
	}

	// Cursor is the hardware cursor state pushed to the display controller.
	Cursor struct {
		// Image holds CursorWidth*CursorHeight premultiplied ARGB pixels.
		Image      []uint32
		HotX, HotY uint16
		X, Y       uint32
		Enabled    bool
	}
)

// SetCursor pushes the parts of c selected by set.
func (d *Device) SetCursor(c *Cursor, set uint16) error {
	cur := &sysCursor{set: set}
	if c.Enabled {
		cur.enable = 1
	}
	cur.hot = sysCurpos{x: c.HotX, y: c.HotY}
	cur.image.dx = c.X
	cur.image.dy = c.Y
	cur.image.width = CursorWidth
	cur.image.height = CursorHeight
	cur.image.depth = CursorDepth

	if set&CursorSetImage != 0 {
		if len(c.Image) != CursorWidth*CursorHeight {
			return errors.NotValidf("cursor image of %d pixels", len(c.Image))
		}
		cur.image.data = uintptr(unsafe.Pointer(&c.Image[0]))
	}

	if err := d.ioctl(IOCursor, unsafe.Pointer(cur)); err != nil {
		return errors.Annotate(err, "MSMFB_CURSOR")
	}
	return nil
}
