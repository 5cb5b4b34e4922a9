//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Run mg.Namespace

// Builds and runs the testbed. ANIMA_CONFIG overrides the configuration file.
func (Run) Engine() error {
	mg.Deps(Build.Engine)

	configPath := os.Getenv("ANIMA_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}
	return sh.RunV("bin/anima-frame", "-config", configPath)
}
