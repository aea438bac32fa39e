package gpu

import (
	"os"
	"unsafe"

	"github.com/juju/errors"
	"launchpad.net/gommap"

	"github.com/NeowayLabs/msm"
	"github.com/NeowayLabs/msm/ioctl"
	"github.com/NeowayLabs/msm/ring"
)

type (
	sysCreateDumb struct {
		height, width uint32
		bpp           uint32
		flags         uint32

		// returned values
		handle uint32
		pitch  uint32
		size   uint64
	}

	sysMapDumb struct {
		handle uint32 // Handle for the object being mapped
		pad    uint32

		// Fake offset to use for subsequent mmap call
		// This is a fixed-size type for 32/64 compatibility.
		offset uint64
	}

	sysDestroyDumb struct {
		handle uint32
	}

	// BO is a buffer object the GPU and the CPU share: either a dumb
	// buffer owned by the DRM device, or memory owned by someone else
	// (the scanout buffer) that is only wrapped.
	BO struct {
		file    *os.File
		handle  uint32
		name    uint32
		pitch   uint32
		size    uint64
		data    gommap.MMap
		foreign []byte
		fence   ring.Fence
	}
)

var (
	// DRM_IOWR(0xB2, struct drm_mode_create_dumb)
	IOCTLModeCreateDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysCreateDumb{})), msm.IOCTLBase, 0xB2)

	// DRM_IOWR(0xB3, struct drm_mode_map_dumb)
	IOCTLModeMapDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysMapDumb{})), msm.IOCTLBase, 0xB3)

	// DRM_IOWR(0xB4, struct drm_mode_destroy_dumb)
	IOCTLModeDestroyDumb = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysDestroyDumb{})), msm.IOCTLBase, 0xB4)
)

// NewBO allocates a width x height buffer of bpp bits per pixel on the
// DRM device and maps it.
func NewBO(file *os.File, width, height, bpp uint32) (*BO, error) {
	req := &sysCreateDumb{width: width, height: height, bpp: bpp}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeCreateDumb),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return nil, errors.Annotatef(err, "DRM_IOCTL_MODE_CREATE_DUMB(%dx%d@%d)", width, height, bpp)
	}
	bo := &BO{
		file:   file,
		handle: req.handle,
		pitch:  req.pitch,
		size:   req.size,
	}

	mreq := &sysMapDumb{handle: bo.handle}
	err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLModeMapDumb),
		uintptr(unsafe.Pointer(mreq)))
	if err != nil {
		bo.destroy()
		return nil, errors.Annotate(err, "DRM_IOCTL_MODE_MAP_DUMB")
	}

	bo.data, err = gommap.MapAt(0, uintptr(file.Fd()), int64(mreq.offset), int64(bo.size),
		gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		bo.destroy()
		return nil, errors.Annotate(err, "mmap dumb buffer")
	}
	return bo, nil
}

// WrapMemory makes a BO of memory the caller keeps owning, such as the
// mapped framebuffer. Closing it releases nothing.
func WrapMemory(mem []byte, pitch uint32) *BO {
	return &BO{
		pitch:   pitch,
		size:    uint64(len(mem)),
		foreign: mem,
	}
}

func (bo *BO) Handle() uint32     { return bo.handle }
func (bo *BO) Pitch() uint32      { return bo.pitch }
func (bo *BO) Size() uint64       { return bo.size }
func (bo *BO) Fence() *ring.Fence { return &bo.fence }

// Owned reports whether closing bo frees GPU memory.
func (bo *BO) Owned() bool { return bo.file != nil }

func (bo *BO) Bytes() []byte {
	if bo.foreign != nil {
		return bo.foreign
	}
	return bo.data
}

// Name returns the global name other processes open bo by. Names are
// created on first use.
func (bo *BO) Name() (uint32, error) {
	if bo.file == nil {
		return 0, errors.NotSupportedf("global name for wrapped memory")
	}
	if bo.name != 0 {
		return bo.name, nil
	}
	req := &msm.GemFlink{Handle: bo.handle}
	err := ioctl.Do(uintptr(bo.file.Fd()), uintptr(msm.IOCTLGemFlink),
		uintptr(unsafe.Pointer(req)))
	if err != nil {
		return 0, errors.Annotate(err, "DRM_IOCTL_GEM_FLINK")
	}
	bo.name = req.Name
	return bo.name, nil
}

func (bo *BO) destroy() error {
	return ioctl.Do(uintptr(bo.file.Fd()), uintptr(IOCTLModeDestroyDumb),
		uintptr(unsafe.Pointer(&sysDestroyDumb{bo.handle})))
}

func (bo *BO) Close() error {
	if bo.file == nil {
		bo.foreign = nil
		return nil
	}
	var e1 error
	if bo.data != nil {
		e1 = bo.data.UnsafeUnmap()
		bo.data = nil
	}
	if e2 := bo.destroy(); e2 != nil {
		return errors.Annotate(e2, "DRM_IOCTL_MODE_DESTROY_DUMB")
	}
	bo.file = nil
	return errors.Annotate(e1, "munmap dumb buffer")
}
