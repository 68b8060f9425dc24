//go:build !nogpu

package visbuf

import (
	"fmt"

	"github.com/gogpu/visbuf/internal/gpu"
)

func init() {
	RegisterBackend(BackendHAL, newHALRecorder)
	addLoggerSetter(gpu.SetLogger)
}

// ownedBackend is a hal backend on a standalone device it closes with it.
type ownedBackend struct {
	*gpu.Backend
	device *gpu.Device
}

func (o *ownedBackend) Close() {
	o.Backend.Close()
	o.device.Close()
}

// newHALRecorder builds the hal backend on the provider's device, or on a
// standalone Vulkan device when there is no provider.
func newHALRecorder(cfg Limits, provider DeviceProvider) (Recorder, error) {
	if provider != nil {
		hp, ok := provider.(halProvider)
		if !ok {
			return nil, fmt.Errorf("%w: device provider does not expose hal device", ErrBackendNotAvailable)
		}
		return gpu.NewFromProvider(hp, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dev, err := gpu.OpenDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, err)
	}
	b, err := gpu.NewFromProvider(dev, cfg)
	if err != nil {
		dev.Close()
		return nil, err
	}
	Logger().Info("visbuf: standalone device", "adapter", dev.Adapter())
	return &ownedBackend{Backend: b, device: dev}, nil
}

// deviceStats reports the delayed device counters of hal backends.
func deviceStats(r Recorder) (Stats, uint64, bool) {
	switch b := r.(type) {
	case *gpu.Backend:
		st, idx := b.LastStats()
		return st, idx, true
	case *ownedBackend:
		st, idx := b.LastStats()
		return st, idx, true
	}
	return Stats{}, 0, false
}
