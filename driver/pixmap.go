package driver

import (
	"encoding/binary"

	"github.com/juju/errors"

	"github.com/NeowayLabs/msm/fb"
	"github.com/NeowayLabs/msm/gpu"
)

// Pixmap is the driver's side record of a drawable surface. A regular
// pixmap owns its BO; the screen pixmap only points at the scanout BO,
// which the Screen owns.
type Pixmap struct {
	Width, Height int
	Depth         int
	BitsPerPixel  int
	Pitch         uint32

	bo     *gpu.BO
	screen bool
	mem    []byte
}

// ScreenPixmap returns the pixmap backed by the visible framebuffer.
func (s *Screen) ScreenPixmap() *Pixmap { return s.screenPixmap }

// CreatePixmap allocates an off-screen pixmap. With acceleration it lives
// in a GPU buffer, otherwise in system memory.
func (s *Screen) CreatePixmap(width, height, depth int) (*Pixmap, error) {
	format, err := fb.FormatForDepth(depth)
	if err != nil {
		return nil, err
	}
	p := &Pixmap{
		Width:        width,
		Height:       height,
		Depth:        depth,
		BitsPerPixel: format.BitsPerPixel,
	}
	if width <= 0 || height <= 0 {
		return p, nil
	}

	if s.pool == nil {
		p.Pitch = uint32(fb.AlignedStride(uint(width), uint(format.BitsPerPixel)))
		p.mem = make([]byte, int(p.Pitch)*height)
		return p, nil
	}

	bo, err := s.gpu.NewBO(uint32(width), uint32(height), uint32(format.BitsPerPixel))
	if err != nil {
		return nil, errors.Annotatef(err, "allocating %dx%d pixmap", width, height)
	}
	p.bo = bo
	p.Pitch = bo.Pitch()
	return p, nil
}

// DestroyPixmap waits for the GPU to be done with p and frees its buffer.
func (s *Screen) DestroyPixmap(p *Pixmap) error {
	if p == nil || p.screen {
		return nil
	}
	p.mem = nil
	if p.bo == nil {
		return nil
	}
	if s.pool != nil {
		if err := s.pool.WaitForBuffer(p.bo); err != nil {
			return errors.Trace(err)
		}
	}
	err := p.bo.Close()
	p.bo = nil
	return errors.Trace(err)
}

// PixmapBO returns the buffer behind p. The screen pixmap is bound to the
// scanout buffer on first use.
func (s *Screen) PixmapBO(p *Pixmap) *gpu.BO {
	if p == nil {
		return nil
	}
	if p.bo != nil {
		return p.bo
	}
	if p.screen && p == s.screenPixmap {
		p.bo = s.scanout
		return p.bo
	}
	return nil
}

// PixmapName returns the global name and pitch other clients use to share
// p's buffer.
func (s *Screen) PixmapName(p *Pixmap) (name, pitch uint32, err error) {
	bo := s.PixmapBO(p)
	if bo == nil {
		return 0, 0, errors.NotFoundf("buffer for pixmap")
	}
	name, err = bo.Name()
	if err != nil {
		return 0, 0, err
	}
	return name, p.Pitch, nil
}

// PrepareAccess returns p's pixels for the CPU, waiting for pending GPU
// work on it first.
func (s *Screen) PrepareAccess(p *Pixmap) ([]byte, error) {
	bo := s.PixmapBO(p)
	if bo == nil {
		return p.mem, nil
	}
	if s.pool != nil {
		if err := s.pool.WaitForBuffer(bo); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return bo.Bytes(), nil
}

// Fill sets every pixel of p to pixel, given in p's format.
func (s *Screen) Fill(p *Pixmap, pixel uint32) error {
	mem, err := s.PrepareAccess(p)
	if err != nil {
		return err
	}
	bpp := p.BitsPerPixel / 8
	rowBytes := p.Width * bpp
	for y := 0; y < p.Height; y++ {
		off := y * int(p.Pitch)
		if off+rowBytes > len(mem) {
			return errors.NotValidf("pixmap of %d bytes for %dx%d at pitch %d",
				len(mem), p.Width, p.Height, p.Pitch)
		}
		row := mem[off : off+rowBytes]
		for x := 0; x < rowBytes; x += bpp {
			switch bpp {
			case 2:
				binary.LittleEndian.PutUint16(row[x:], uint16(pixel))
			case 4:
				binary.LittleEndian.PutUint32(row[x:], pixel)
			}
		}
	}
	return nil
}
