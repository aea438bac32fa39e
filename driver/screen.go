// Package driver implements the screen lifecycle of the freedreno display
// driver: pre-init, screen-init, VT switches, the block handler and
// close-down, on top of the fb, mode, gpu and ring packages.
//
// The display server calls into a Screen from a single thread. A Screen
// is not safe for concurrent use.
package driver

import (
	"log/slog"

	"github.com/juju/errors"

	"github.com/NeowayLabs/msm"
	"github.com/NeowayLabs/msm/fb"
	"github.com/NeowayLabs/msm/gpu"
	"github.com/NeowayLabs/msm/mode"
	"github.com/NeowayLabs/msm/ring"
)

// Screen is the device handle of one display.
type Screen struct {
	Index int

	devices Devices
	opts    Options
	log     *slog.Logger
	level   *slog.LevelVar
	debug   bool

	fb        Framebuffer
	fix       fb.FixScreeninfo
	vinfo     fb.VarScreeninfo
	format    fb.Format
	hwVersion int
	mode      *mode.Mode

	VirtualX, VirtualY int
	DisplayWidth       int
	VideoRAM           int

	gpu      GPU
	pool     *ring.Pool
	contexts [ring.ContextBuffers]*gpu.BO
	scanout  *gpu.BO

	hwCursor bool
	cursor   fb.Cursor

	screenPixmap *Pixmap
	wrapped      Hooks
	vtActive     bool
	initialized  bool
}

// NewScreen returns the handle for the display claimed by a probe.
func NewScreen(index int, claim *Claim, devices Devices, logging Logging) *Screen {
	s := &Screen{
		Index:   index,
		devices: devices.withDefaults(),
		opts:    DefaultOptions(),
	}
	if claim != nil {
		s.opts = claim.Section.Options
		s.opts.FB = claim.Path
	}
	s.debug = logging.Debug
	logging.Debug = logging.Debug || s.opts.Debug
	s.log, s.level = logging.newLogger(index)
	return s
}

func (s *Screen) Logger() *slog.Logger            { return s.log }
func (s *Screen) Options() Options                { return s.opts }
func (s *Screen) Mode() *mode.Mode                { return s.mode }
func (s *Screen) Format() fb.Format               { return s.format }
func (s *Screen) HWVersion() int                  { return s.hwVersion }
func (s *Screen) VarScreeninfo() fb.VarScreeninfo { return s.vinfo }
func (s *Screen) Accel() *ring.Pool               { return s.pool }
func (s *Screen) HWCursor() bool                  { return s.hwCursor }
func (s *Screen) VTActive() bool                  { return s.vtActive }

// PreInit opens the devices, negotiates the pixel format and derives the
// mode. Any error aborts the screen and closes what was opened.
func (s *Screen) PreInit(opts Options) (err error) {
	s.opts = opts
	setDebug(s.level, s.debug || opts.Debug)
	s.log.Debug("pre-init")

	dev, err := s.devices.OpenFramebuffer(opts.FB)
	if err != nil {
		return errors.Annotate(err, "opening the framebuffer")
	}
	s.fb = dev
	s.fix = dev.Fix()
	defer func() {
		if err != nil {
			s.closeDevices()
		}
	}()

	if opts.NoAccel {
		s.log.Info("acceleration disabled")
	} else {
		g, err := s.devices.OpenGPU()
		if err != nil {
			return errors.Annotate(err, "opening the GPU")
		}
		s.gpu = g
		s.log.Info("using GPU", "device", g.Name())
	}

	if err := s.initMode(); err != nil {
		return err
	}

	s.hwCursor = !opts.SWCursor

	s.log.Info("MSM/Qualcomm processor", "video_memory_kb", s.VideoRAM/1024, "id", dev.ID())
	s.log.Info("MSM options", "hw_cursor", s.hwCursor, "accel", s.gpu != nil,
		"mode", s.mode.String())
	return nil
}

func (s *Screen) initMode() error {
	id := s.fb.ID()
	v, err := fb.HWVersion(id)
	if err != nil {
		s.log.Warn("unknown mode-info version, using default", "id", id,
			"version", fb.DefaultHWVersion, "err", err)
		v = fb.DefaultHWVersion
	}
	s.hwVersion = v

	vinfo, err := s.fb.VarScreeninfo()
	if err != nil {
		return errors.Trace(err)
	}

	depth := s.opts.DefaultDepth
	if depth == 0 {
		depth = int(vinfo.BitsPerPixel)
	}
	format, err := fb.FormatForDepth(depth)
	if err != nil {
		return errors.Annotate(err, "negotiating the pixel format")
	}
	format.Apply(&vinfo)
	vinfo.Activate = fb.ActivateNow | fb.ActivateForce
	if err := s.fb.PutVarScreeninfo(&vinfo); err != nil {
		return errors.Annotatef(err, "setting depth %d", depth)
	}
	s.format = format
	s.vinfo = vinfo
	s.fix = s.fb.Fix()

	if !mode.ValidRefresh(s.opts.DefaultVsync) {
		s.log.Warn("invalid refresh target, using default",
			"vsync", s.opts.DefaultVsync, "default", mode.DefaultRefresh)
	}
	s.mode = mode.Derive(mode.Timings{
		Width:       vinfo.XRes,
		Height:      vinfo.YRes,
		LeftMargin:  vinfo.LeftMargin,
		RightMargin: vinfo.RightMargin,
		UpperMargin: vinfo.UpperMargin,
		LowerMargin: vinfo.LowerMargin,
		HSyncLen:    vinfo.HSyncLen,
		VSyncLen:    vinfo.VSyncLen,
	}, s.opts.DefaultVsync)

	s.VirtualX = int(vinfo.XRes)
	s.VirtualY = int(vinfo.YRes)
	s.DisplayWidth = s.VirtualX
	if bpp := format.BytesPerPixel(); bpp > 0 && s.fix.LineLength > 0 {
		s.DisplayWidth = int(s.fix.LineLength) / bpp
	}
	s.VideoRAM = int(s.fix.SmemLen)

	s.log.Debug("mode", "name", s.mode.Name, "clock_khz", s.mode.Clock,
		"depth", format.Depth, "bpp", format.BitsPerPixel, "hw_version", s.hwVersion)
	return nil
}

// ScreenInit maps the framebuffer, brings the display up, sets up
// acceleration and the cursor, and wraps the host's hooks. The returned
// hooks replace orig.
func (s *Screen) ScreenInit(orig Hooks) (Hooks, error) {
	s.log.Debug("screen-init")
	if s.fb == nil {
		return orig, errors.New("screen-init before pre-init")
	}

	mem, err := s.fb.Map()
	if err != nil {
		return orig, errors.Trace(err)
	}
	s.scanout = gpu.WrapMemory(mem, s.fix.LineLength)
	s.screenPixmap = &Pixmap{
		Width:        s.VirtualX,
		Height:       s.VirtualY,
		Depth:        s.format.Depth,
		BitsPerPixel: s.format.BitsPerPixel,
		Pitch:        s.fix.LineLength,
		screen:       true,
	}

	if err := s.fb.Unblank(); err != nil {
		return orig, errors.Trace(err)
	}
	if err := s.fb.ResumeRefresher(); err != nil {
		s.log.Warn("could not resume the software refresher", "err", err)
	}

	if err := s.setupAccel(); err != nil {
		return orig, errors.Annotate(err, "setting up acceleration")
	}

	if s.hwCursor {
		if err := s.cursorInit(); err != nil {
			s.log.Error("hardware cursor initialization failed", "err", err)
			s.hwCursor = false
		}
	}

	s.initialized = true
	return s.Wrap(orig), nil
}

// setupAccel creates the ring pool and runs the initial context setup.
// Failing to allocate buffers only disables acceleration. Failing to
// submit is fatal; the buffers and the GPU are released either way.
func (s *Screen) setupAccel() (err error) {
	if s.gpu == nil {
		return nil
	}

	for i := range s.contexts {
		bo, err := s.gpu.NewBO(1024, 1, 32)
		if err != nil {
			s.log.Error("unable to set up acceleration", "err", err)
			s.releaseContexts()
			s.closeGPU()
			return nil
		}
		s.contexts[i] = bo
	}

	defer func() {
		if err != nil {
			s.releaseContexts()
			s.closeGPU()
		}
	}()

	pool := ring.NewPool(s.gpu)
	for i, bo := range s.contexts {
		pool.SetContextBuffer(i, bo)
	}

	r, err := pool.Begin()
	if err != nil {
		return err
	}
	r.EmitPacket(ring.OpWaitForIdle, 0)
	for i := range s.contexts {
		r.Reference(pool.ContextBuffer(i))
	}
	r.Reference(s.scanout)
	pool.MarkDirty()
	if err := pool.Flush(); err != nil {
		return err
	}
	s.pool = pool
	s.log.Debug("acceleration ready", "timestamp", pool.Timestamp())
	return nil
}

func (s *Screen) releaseContexts() {
	for i, bo := range s.contexts {
		if bo == nil {
			continue
		}
		if err := bo.Close(); err != nil {
			s.log.Warn("releasing context buffer", "index", i, "err", err)
		}
		s.contexts[i] = nil
	}
}

func (s *Screen) closeGPU() {
	if s.gpu == nil {
		return
	}
	if err := s.gpu.Close(); err != nil {
		s.log.Warn("closing the GPU", "err", err)
	}
	s.gpu = nil
}

func (s *Screen) closeDevices() {
	s.closeGPU()
	if s.fb == nil {
		return
	}
	if err := s.fb.Close(); err != nil {
		s.log.Warn("closing the framebuffer", "err", err)
	}
	s.fb = nil
}

// SwitchMode always succeeds: a panel offers a single mode.
func (s *Screen) SwitchMode(*mode.Mode) bool {
	return true
}

// EnterVT points the display back at the start of the framebuffer.
func (s *Screen) EnterVT() error {
	s.log.Debug("enter-vt")
	if s.fb == nil {
		return errors.New("enter-vt without a framebuffer")
	}
	if err := s.fb.Pan(0, 0); err != nil {
		s.log.Warn("could not pan the display", "err", err)
	}
	s.vtActive = true
	return nil
}

// LeaveVT flushes what was recorded so the GPU is not left with a
// half-built ring while another client owns the display.
func (s *Screen) LeaveVT() {
	s.log.Debug("leave-vt")
	if s.pool != nil {
		if err := s.pool.Flush(); err != nil {
			s.log.Error("flush on leave-vt failed", "err", err)
		}
	}
	s.vtActive = false
}

// CreateScreenResources enters the VT and binds the scanout buffer to the
// screen pixmap.
func (s *Screen) CreateScreenResources() error {
	if err := s.EnterVT(); err != nil {
		return err
	}
	if s.screenPixmap != nil {
		s.screenPixmap.bo = s.scanout
	}
	return nil
}

// BlockHandler submits the commands batched since the last call. A failed
// submission drops the frame.
func (s *Screen) BlockHandler() {
	if !s.vtActive || s.pool == nil {
		return
	}
	if err := s.pool.Flush(); err != nil {
		s.log.Error("dropping frame", "err", err)
	}
}

// CloseScreen leaves the VT and releases every device resource. It is
// safe to call more than once.
func (s *Screen) CloseScreen() error {
	s.log.Debug("close screen")
	if s.vtActive {
		s.LeaveVT()
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.hwCursor && s.initialized {
		s.cursor.Enabled = false
		if err := s.fb.SetCursor(&s.cursor, fb.CursorSetAll); err != nil {
			s.log.Warn("could not hide the hardware cursor", "err", err)
		}
	}
	if s.pool != nil {
		keep(errors.Annotate(s.pool.Finish(), "idling the GPU"))
		s.pool = nil
	}
	s.releaseContexts()
	s.closeGPU()

	if s.scanout != nil {
		keep(s.scanout.Close())
		s.scanout = nil
	}
	s.screenPixmap = nil
	if s.fb != nil {
		keep(errors.Annotate(s.fb.Close(), "closing the framebuffer"))
		s.fb = nil
	}
	s.initialized = false
	return firstErr
}

// Identify returns the line the driver announces itself with.
func Identify() string {
	return msm.DriverName + ": Video driver for Qualcomm processors"
}
