package driver

import (
	"bytes"
	"testing"

	"github.com/juju/errors"

	"github.com/NeowayLabs/msm/fb"
	"github.com/NeowayLabs/msm/gpu"
)

type fakeFB struct {
	id       string
	fix      fb.FixScreeninfo
	vinfo    fb.VarScreeninfo
	mem      []byte
	puts     []fb.VarScreeninfo
	pans     int
	unblanks int
	cursors  []fb.Cursor
	closed   bool

	panErr, cursorErr, refreshErr, putErr error
}

func newFakeFB(id string, depth uint32) *fakeFB {
	f := &fakeFB{
		id: id,
		vinfo: fb.VarScreeninfo{
			XRes: 480, YRes: 800,
			XResVirtual: 480, YResVirtual: 800,
			BitsPerPixel: depth,
			LeftMargin:   10, RightMargin: 20,
			UpperMargin: 3, LowerMargin: 4,
			HSyncLen: 5, VSyncLen: 2,
		},
	}
	copy(f.fix.ID[:], id)
	f.setPitch()
	return f
}

func (f *fakeFB) setPitch() {
	f.fix.LineLength = f.vinfo.XRes * f.vinfo.BitsPerPixel / 8
	f.fix.SmemLen = f.fix.LineLength * f.vinfo.YRes
}

func (f *fakeFB) ID() string                               { return f.id }
func (f *fakeFB) Fix() fb.FixScreeninfo                    { return f.fix }
func (f *fakeFB) Unblank() error                           { f.unblanks++; return nil }
func (f *fakeFB) ResumeRefresher() error                   { return f.refreshErr }
func (f *fakeFB) Close() error                             { f.closed = true; return nil }
func (f *fakeFB) VarScreeninfo() (fb.VarScreeninfo, error) { return f.vinfo, nil }

func (f *fakeFB) PutVarScreeninfo(v *fb.VarScreeninfo) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, *v)
	f.vinfo = *v
	f.setPitch()
	return nil
}

func (f *fakeFB) Pan(x, y uint32) error {
	f.pans++
	return f.panErr
}

func (f *fakeFB) SetCursor(c *fb.Cursor, set uint16) error {
	if f.cursorErr != nil {
		return f.cursorErr
	}
	f.cursors = append(f.cursors, *c)
	return nil
}

func (f *fakeFB) Map() ([]byte, error) {
	if f.mem == nil {
		f.mem = make([]byte, f.fix.SmemLen)
	}
	return f.mem, nil
}

// fakeGPU retires every submission immediately.
type fakeGPU struct {
	ts        uint32
	submits   int
	waits     int
	bos       int
	closed    bool
	submitErr error
	boErr     error
}

func (g *fakeGPU) Submit(slot int, cmds []uint32) (uint32, error) {
	if g.submitErr != nil {
		return 0, g.submitErr
	}
	g.submits++
	g.ts++
	return g.ts, nil
}

func (g *fakeGPU) WaitTimestamp(ts uint32) error {
	g.waits++
	return nil
}

func (g *fakeGPU) NewBO(width, height, bpp uint32) (*gpu.BO, error) {
	if g.boErr != nil {
		return nil, g.boErr
	}
	g.bos++
	pitch := width * bpp / 8
	return gpu.WrapMemory(make([]byte, pitch*height), pitch), nil
}

func (g *fakeGPU) Name() string { return "fake-kgsl" }

func (g *fakeGPU) Close() error {
	g.closed = true
	return nil
}

type fixture struct {
	fb     *fakeFB
	gpu    *fakeGPU
	log    *bytes.Buffer
	screen *Screen
}

func newFixture(t *testing.T, id string, depth uint32, opts Options) *fixture {
	t.Helper()
	fx := &fixture{
		fb:  newFakeFB(id, depth),
		gpu: &fakeGPU{},
		log: &bytes.Buffer{},
	}
	devices := Devices{
		OpenFramebuffer: func(path string) (Framebuffer, error) {
			if path != opts.FB {
				return nil, errors.NotFoundf("framebuffer %s", path)
			}
			return fx.fb, nil
		},
		OpenGPU: func() (GPU, error) { return fx.gpu, nil },
	}
	claim := &Claim{Section: Section{Name: "card", Options: opts}, Path: opts.FB, ID: id}
	fx.screen = NewScreen(0, claim, devices, Logging{Output: fx.log})
	return fx
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.FB = "/dev/fb0"
	return opts
}
