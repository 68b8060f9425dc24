//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var goCmd = sh.RunCmd("go")

type Check mg.Namespace

// Runs go vet for both the GPU and nogpu builds.
func (Check) Vet() error {
	if err := goCmd("vet", "./..."); err != nil {
		return err
	}
	return goCmd("vet", "-tags", "nogpu", "./...")
}

// Runs the test suite for both the GPU and nogpu builds.
func (Check) Test() error {
	if err := goCmd("test", "-race", "./..."); err != nil {
		return err
	}
	return goCmd("test", "-tags", "nogpu", "./...")
}

// Compiles every WGSL kernel through naga.
func (Check) Shaders() error {
	return goCmd("test", "-run", "TestValidateShaders|TestShaderCompilation", "./internal/gpu/")
}

type Run mg.Namespace

// Renders the demo scene on the software backend into vbdemo-out/.
func (Run) Demo() error {
	mg.Deps(Check.Shaders)
	return sh.RunV("go", "run", "./cmd/vbdemo", "-backend", "software", "-frames", "4")
}
