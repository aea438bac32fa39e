package msm

import (
	"unsafe"

	"github.com/NeowayLabs/msm/ioctl"
)

const IOCTLBase = 'd'

var (
	// DRM_IOWR(0x00, struct drm_version)
	IOCTLVersion = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(version{})), IOCTLBase, 0)

	// DRM_IOWR(0x0a, struct drm_gem_flink)
	IOCTLGemFlink = ioctl.IOWR(IOCTLBase, 0x0a, unsafe.Sizeof(GemFlink{}))

	// DRM_IOWR(0x0c, struct drm_get_cap)
	IOCTLGetCap = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(capability{})), IOCTLBase, 0x0c)
)

// GemFlink is struct drm_gem_flink.
type GemFlink struct {
	Handle uint32
	Name   uint32
}
