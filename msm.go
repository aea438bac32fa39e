package msm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/juju/errors"

	"github.com/NeowayLabs/msm/ioctl"
)

type (
	version struct {
		Major   int32
		Minor   int32
		Patch   int32
		namelen int64
		name    uintptr
		datelen int64
		date    uintptr
		desclen int64
		desc    uintptr
	}

	// Version of DRM driver
	Version struct {
		Major, Minor, Patch int32
		Name                string // Name of the driver (eg.: kgsl)
		Date                string
		Desc                string
	}
)

const (
	// DriverName is the name the driver registers and matches device
	// sections against.
	DriverName = "freedreno"

	// GPUDriverName is the DRM driver that fronts the Adreno GPU.
	GPUDriverName = "kgsl"

	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0

	driPath = "/dev/dri"

	// drmOpen in libdrm walks the same number of minors.
	maxMinors = 16
)

// PackVersion encodes a driver version the way the display server expects
// it in the module record.
func PackVersion(major, minor, patch int) uint32 {
	return uint32(major)<<20 | uint32(minor)<<10 | uint32(patch)
}

// CurrentVersion is the packed version of this driver.
func CurrentVersion() uint32 {
	return PackVersion(VersionMajor, VersionMinor, VersionPatch)
}

func OpenCard(n int) (*os.File, error) {
	return open(fmt.Sprintf("%s/card%d", driPath, n))
}

// OpenByName opens the first DRM card whose driver reports name.
func OpenByName(name string) (*os.File, Version, error) {
	return openByName(driPath, name)
}

func openByName(dir, name string) (*os.File, Version, error) {
	for n := 0; n < maxMinors; n++ {
		f, err := open(filepath.Join(dir, fmt.Sprintf("card%d", n)))
		if err != nil {
			continue
		}
		v, err := GetVersion(f)
		if err != nil || v.Name != name {
			f.Close()
			continue
		}
		return f, v, nil
	}
	return nil, Version{}, errors.NotFoundf("DRM device %q under %s", name, dir)
}

func open(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return f, nil
}

func GetVersion(file *os.File) (Version, error) {
	var (
		name, date, desc []byte
	)

	version := &version{}
	err := ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLVersion),
		uintptr(unsafe.Pointer(version)))
	if err != nil {
		return Version{}, errors.Annotate(err, "DRM_IOCTL_VERSION")
	}

	if version.namelen > 0 {
		name = make([]byte, version.namelen+1)
		version.name = uintptr(unsafe.Pointer(&name[0]))
	}
	if version.datelen > 0 {
		date = make([]byte, version.datelen+1)
		version.date = uintptr(unsafe.Pointer(&date[0]))
	}
	if version.desclen > 0 {
		desc = make([]byte, version.desclen+1)
		version.desc = uintptr(unsafe.Pointer(&desc[0]))
	}

	err = ioctl.Do(uintptr(file.Fd()), uintptr(IOCTLVersion),
		uintptr(unsafe.Pointer(version)))
	if err != nil {
		return Version{}, errors.Annotate(err, "DRM_IOCTL_VERSION")
	}

	return Version{
		Major: version.Major,
		Minor: version.Minor,
		Patch: version.Patch,
		Name:  cstring(name, version.namelen),
		Date:  cstring(date, version.datelen),
		Desc:  cstring(desc, version.desclen),
	}, nil
}

// cstring drops the C null bytes the kernel may leave in buf.
func cstring(buf []byte, n int64) string {
	if n <= 0 || buf == nil {
		return ""
	}
	if n > int64(len(buf)) {
		n = int64(len(buf))
	}
	return string(bytes.TrimFunc(buf[:n], func(r rune) bool { return r == 0 }))
}
