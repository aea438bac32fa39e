// Package msm provides the device-level pieces of a display driver for
// Qualcomm MSM/Snapdragon SoCs: opening the DRM node that fronts the
// Adreno GPU (the "kgsl" driver), querying its version and capabilities,
// and the request codes shared by the sub-packages.
//
// The framebuffer side lives in package fb, timing derivation in package
// mode, GPU buffers and command submission in package gpu, ring
// bookkeeping in package ring, and the screen lifecycle in package driver.
package msm
