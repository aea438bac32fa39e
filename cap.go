package msm

import (
	"os"
	"unsafe"

	"github.com/juju/errors"

	"github.com/NeowayLabs/msm/ioctl"
)

type (
	capability struct {
		cap uint64
		val uint64
	}
)

const (
	CapDumbBuffer = iota + 1
	CapVBlankHighCRTC
	CapDumbPreferredDepth
	CapDumbPreferShadow
	CapPrime
	CapTimestampMonotonic
	CapAsyncPageFlip
)

// GetCap returns the value the kernel reports for capability id.
func GetCap(file *os.File, id uint64) (uint64, error) {
	cap := &capability{cap: id}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLGetCap), uintptr(unsafe.Pointer(cap)))
	if err != nil {
		return 0, errors.Annotatef(err, "DRM_IOCTL_GET_CAP(%d)", id)
	}
	return cap.val, nil
}

func HasDumbBuffer(file *os.File) bool {
	val, err := GetCap(file, CapDumbBuffer)
	if err != nil {
		return false
	}
	return val != 0
}
