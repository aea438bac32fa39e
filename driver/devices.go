package driver

import (
	"os"

	"github.com/juju/errors"

	"github.com/NeowayLabs/msm"
	"github.com/NeowayLabs/msm/fb"
	"github.com/NeowayLabs/msm/gpu"
	"github.com/NeowayLabs/msm/ring"
)

type (
	// Framebuffer is the display controller as the screen uses it.
	// *fb.Device implements it.
	Framebuffer interface {
		ID() string
		Fix() fb.FixScreeninfo
		VarScreeninfo() (fb.VarScreeninfo, error)
		PutVarScreeninfo(*fb.VarScreeninfo) error
		Pan(x, y uint32) error
		Unblank() error
		ResumeRefresher() error
		SetCursor(c *fb.Cursor, set uint16) error
		Map() ([]byte, error)
		Close() error
	}

	// GPU allocates buffers and runs command streams.
	GPU interface {
		ring.Submitter
		NewBO(width, height, bpp uint32) (*gpu.BO, error)
		Name() string
		Close() error
	}

	// Devices opens the hardware a screen drives. Zero fields use the real
	// devices.
	Devices struct {
		OpenFramebuffer func(path string) (Framebuffer, error)
		OpenGPU         func() (GPU, error)
	}

	adreno struct {
		*gpu.Pipe
		drm     *os.File
		version msm.Version
	}
)

func openFramebuffer(path string) (Framebuffer, error) {
	d, err := fb.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// openAdreno opens the DRM node of the kgsl driver for buffers and the
// KGSL node for submission.
func openAdreno() (GPU, error) {
	drm, version, err := msm.OpenByName(msm.GPUDriverName)
	if err != nil {
		return nil, errors.Annotate(err, "opening the GPU")
	}
	if !msm.HasDumbBuffer(drm) {
		drm.Close()
		return nil, errors.NotSupportedf("%s without dumb buffers", version.Name)
	}
	pipe, err := gpu.OpenPipe(gpu.DefaultPipePath)
	if err != nil {
		drm.Close()
		return nil, err
	}
	return &adreno{Pipe: pipe, drm: drm, version: version}, nil
}

func (a *adreno) NewBO(width, height, bpp uint32) (*gpu.BO, error) {
	return gpu.NewBO(a.drm, width, height, bpp)
}

func (a *adreno) Name() string {
	return a.drm.Name()
}

func (a *adreno) Close() error {
	e1 := a.Pipe.Close()
	if e2 := a.drm.Close(); e2 != nil {
		return errors.Trace(e2)
	}
	return e1
}

func (d Devices) withDefaults() Devices {
	if d.OpenFramebuffer == nil {
		d.OpenFramebuffer = openFramebuffer
	}
	if d.OpenGPU == nil {
		d.OpenGPU = openAdreno
	}
	return d
}
