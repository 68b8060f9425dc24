package visbuf

import "github.com/gogpu/gpucontext"

// DeviceProvider is the host application's GPU device, shared with the
// pipeline through WithDeviceProvider. The hal backend additionally needs
// the provider to expose HalDevice() any and HalQueue() any returning a
// hal.Device and hal.Queue.
type DeviceProvider = gpucontext.DeviceProvider

// halProvider is the part of a provider the hal backend consumes.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}
