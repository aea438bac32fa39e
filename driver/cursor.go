package driver

import (
	"github.com/juju/errors"

	"github.com/NeowayLabs/msm/fb"
)

func (s *Screen) cursorInit() error {
	s.cursor = fb.Cursor{Image: make([]uint32, fb.CursorWidth*fb.CursorHeight)}
	return s.fb.SetCursor(&s.cursor, fb.CursorSetAll)
}

var errSWCursor = errors.NotSupportedf("hardware cursor")

// LoadCursor replaces the cursor image. argb holds fb.CursorWidth x
// fb.CursorHeight pixels.
func (s *Screen) LoadCursor(argb []uint32, hotX, hotY uint16) error {
	if !s.hwCursor {
		return errSWCursor
	}
	if len(argb) != fb.CursorWidth*fb.CursorHeight {
		return errors.NotValidf("cursor image of %d pixels", len(argb))
	}
	copy(s.cursor.Image, argb)
	s.cursor.HotX, s.cursor.HotY = hotX, hotY
	return s.fb.SetCursor(&s.cursor, fb.CursorSetImage|fb.CursorSetHot)
}

func (s *Screen) MoveCursor(x, y uint32) error {
	if !s.hwCursor {
		return errSWCursor
	}
	s.cursor.X, s.cursor.Y = x, y
	return s.fb.SetCursor(&s.cursor, fb.CursorSetPos)
}

func (s *Screen) ShowCursor(show bool) error {
	if !s.hwCursor {
		return errSWCursor
	}
	s.cursor.Enabled = show
	return s.fb.SetCursor(&s.cursor, fb.CursorSetPos)
}
