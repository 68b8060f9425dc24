package visbuf

import (
	"errors"

	"github.com/gogpu/visbuf/internal/frame"
	"github.com/gogpu/visbuf/scene"
)

// Pipeline errors.
var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("visbuf: pipeline closed")

	// ErrBackendNotAvailable is returned when the requested backend is not
	// registered or cannot reach a device.
	ErrBackendNotAvailable = errors.New("visbuf: backend not available")

	// ErrNoView is returned by RenderFrame before the first SetView.
	ErrNoView = errors.New("visbuf: no view set")

	// ErrCapacity is returned when a reservation exceeds the draw slot
	// range of the packed index buffer.
	ErrCapacity = errors.New("visbuf: capacity exceeds draw slot range")

	// ErrUnknownFormat is returned by LoadConfig for an unsupported file
	// extension.
	ErrUnknownFormat = errors.New("visbuf: unknown config format")
)

// Errors raised by the stages and the scene layer, re-exported so callers
// can match them with errors.Is without importing internal packages.
var (
	ErrInvalidConfig     = frame.ErrInvalidConfig
	ErrInvalidTransition = frame.ErrInvalidTransition
	ErrDeviceLost        = frame.ErrDeviceLost
	ErrFrameTimeout      = frame.ErrFrameTimeout
	ErrInvalidMesh       = scene.ErrInvalidMesh
	ErrInvalidInstance   = scene.ErrInvalidInstance
)
