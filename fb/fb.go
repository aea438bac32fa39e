// Package fb drives the MSM display controller through the Linux fbdev
// interface: screen info queries, mode programming, panning, blanking and
// memory mapping of the scanout buffer.
package fb

import (
	"os"
	"unsafe"

	"github.com/juju/errors"
	"launchpad.net/gommap"

	"github.com/NeowayLabs/msm/ioctl"
)

// DefaultPath is used when no device path is configured.
const DefaultPath = "/dev/fb0"

type Device struct {
	file  *os.File
	path  string
	finfo FixScreeninfo
	mem   gommap.MMap
}

// Open opens the framebuffer at path and reads its fixed screen info.
func Open(path string) (*Device, error) {
	if path == "" {
		path = DefaultPath
	}
	file, err := os.OpenFile(path, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", path)
	}
	d := &Device{file: file, path: path}

	if err := d.ioctl(IOGetFScreeninfo, unsafe.Pointer(&d.finfo)); err != nil {
		file.Close()
		return nil, errors.Annotatef(err, "FBIOGET_FSCREENINFO on %s", path)
	}
	return d, nil
}

// Identify returns the id of the framebuffer at path without keeping the
// device open.
func Identify(path string) (string, error) {
	d, err := Open(path)
	if err != nil {
		return "", err
	}
	defer d.Close()
	return d.ID(), nil
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	return ioctl.Do(d.file.Fd(), req, uintptr(arg))
}

func (d *Device) Path() string         { return d.path }
func (d *Device) Fd() uintptr          { return d.file.Fd() }
func (d *Device) Fix() FixScreeninfo   { return d.finfo }
func (d *Device) ID() string           { return d.finfo.Name() }
func (d *Device) MemoryLength() uint32 { return d.finfo.SmemLen }
func (d *Device) LineLength() uint32   { return d.finfo.LineLength }
func (d *Device) Mapped() []byte       { return d.mem }

func (d *Device) VarScreeninfo() (VarScreeninfo, error) {
	var vinfo VarScreeninfo
	if err := d.ioctl(IOGetVScreeninfo, unsafe.Pointer(&vinfo)); err != nil {
		return vinfo, errors.Annotate(err, "FBIOGET_VSCREENINFO")
	}
	return vinfo, nil
}

// PutVarScreeninfo programs vinfo. The kernel may adjust the values, so
// vinfo is updated in place and the fixed info is reread since the line
// length follows the depth.
func (d *Device) PutVarScreeninfo(vinfo *VarScreeninfo) error {
	if err := d.ioctl(IOPutVScreeninfo, unsafe.Pointer(vinfo)); err != nil {
		return errors.Annotate(err, "FBIOPUT_VSCREENINFO")
	}
	if err := d.ioctl(IOGetFScreeninfo, unsafe.Pointer(&d.finfo)); err != nil {
		return errors.Annotate(err, "FBIOGET_FSCREENINFO")
	}
	return nil
}

// Pan moves the visible origin to (x, y) inside the virtual resolution.
func (d *Device) Pan(x, y uint32) error {
	vinfo, err := d.VarScreeninfo()
	if err != nil {
		return err
	}
	vinfo.XOffset = x
	vinfo.YOffset = y
	if err := d.ioctl(IOPanDisplay, unsafe.Pointer(&vinfo)); err != nil {
		return errors.Annotatef(err, "FBIOPAN_DISPLAY(%d, %d)", x, y)
	}
	return nil
}

func (d *Device) Unblank() error {
	if err := ioctl.Do(d.file.Fd(), IOBlank, BlankUnblank); err != nil {
		return errors.Annotate(err, "FBIOBLANK")
	}
	return nil
}

// ResumeRefresher restarts the kernel's software refresh of panels without
// a hardware refresh path.
func (d *Device) ResumeRefresher() error {
	var arg uint32
	if err := d.ioctl(IOResumeSWRefresher, unsafe.Pointer(&arg)); err != nil {
		return errors.Annotate(err, "MSMFB_RESUME_SW_REFRESHER")
	}
	return nil
}

// Map maps the whole framebuffer memory. Calling Map twice returns the
// existing mapping.
func (d *Device) Map() ([]byte, error) {
	if d.mem != nil {
		return d.mem, nil
	}
	if d.finfo.SmemLen == 0 {
		return nil, errors.NotValidf("framebuffer %s with zero memory length", d.path)
	}
	mem, err := gommap.MapRegion(d.file.Fd(), 0, int64(d.finfo.SmemLen),
		gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		return nil, errors.Annotatef(err, "mmap %s", d.path)
	}
	d.mem = mem
	return d.mem, nil
}

func (d *Device) Unmap() error {
	if d.mem == nil {
		return nil
	}
	err := d.mem.UnsafeUnmap()
	d.mem = nil
	return errors.Annotate(err, "munmap")
}

func (d *Device) Close() error {
	e1 := d.Unmap()
	if e2 := d.file.Close(); e2 != nil {
		return errors.Trace(e2)
	}
	return e1
}
