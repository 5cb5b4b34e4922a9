//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// packages covered by the unit tests; none of them needs a GPU or a display
var testPackages = []string{"./engine/...", "./testbed/..."}

// cgoEnv is required by glfw, vulkan and the race detector.
var cgoEnv = map[string]string{"CGO_ENABLED": "1"}

// goCmd runs the go tool with cgo on, echoing its output.
func goCmd(args ...string) error {
	return sh.RunWithV(cgoEnv, mg.GoCmd(), args...)
}

type Build mg.Namespace

// Downloads the modules and builds the engine binary into bin/.
func (Build) Engine() error {
	if err := goCmd("mod", "download"); err != nil {
		return err
	}
	return goCmd("build", "-o", "bin/anima-frame", ".")
}

type Test mg.Namespace

// Runs every unit test.
func (Test) Unit() error {
	return goCmd(append([]string{"test"}, testPackages...)...)
}

// Runs the unit tests with the race detector.
func (Test) Race() error {
	return goCmd(append([]string{"test", "-race"}, testPackages...)...)
}
