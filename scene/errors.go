// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import "errors"

var (
	// ErrInvalidMesh is returned when mesh data breaks the meshlet caps or
	// references data outside its own arrays.
	ErrInvalidMesh = errors.New("scene: invalid mesh")

	// ErrInvalidInstance is returned when an instance, transform or
	// material update references something that does not exist.
	ErrInvalidInstance = errors.New("scene: invalid instance")
)
