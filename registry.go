package visbuf

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/visbuf/internal/cull"
)

// Backend names.
const (
	// BackendSoftware runs every stage on a CPU worker pool.
	BackendSoftware = "software"
	// BackendHAL records every stage on a gogpu/wgpu hal device.
	BackendHAL = "hal"
)

// BackendFactory creates a recorder for cfg. provider is nil unless the
// pipeline was given WithDeviceProvider.
type BackendFactory func(cfg Limits, provider DeviceProvider) (Recorder, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendHAL, BackendSoftware}
)

func init() {
	RegisterBackend(BackendSoftware, newSoftwareRecorder)
}

func newSoftwareRecorder(cfg Limits, _ DeviceProvider) (Recorder, error) {
	return cull.New(cfg)
}

// RegisterBackend registers a backend factory with the given name.
// If a backend with the same name is already registered, it is replaced.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// UnregisterBackend removes a backend from the registry.
// This is useful for testing.
func UnregisterBackend(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// AvailableBackends returns the sorted names of registered backends.
func AvailableBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsBackendRegistered checks if a backend with the given name is registered.
func IsBackendRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// newRecorder creates the named backend, or the first one in priority
// order that succeeds when name is empty.
func newRecorder(name string, cfg Limits, provider DeviceProvider) (Recorder, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	var candidates []string
	if name == "" {
		for _, n := range backendPriority {
			if _, ok := backends[n]; ok {
				candidates = append(candidates, n)
			}
		}
		for n := range backends {
			if !slices.Contains(candidates, n) {
				candidates = append(candidates, n)
			}
		}
	}
	registryMu.RUnlock()

	if name != "" {
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
		}
		return factory(cfg, provider)
	}

	var errs []error
	for _, n := range candidates {
		registryMu.RLock()
		f := backends[n]
		registryMu.RUnlock()
		if f == nil {
			continue
		}
		r, err := f(cfg, provider)
		if err == nil {
			return r, nil
		}
		if errors.Is(err, ErrInvalidConfig) {
			return nil, err
		}
		Logger().Warn("visbuf: backend unavailable, trying next", "backend", n, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}
