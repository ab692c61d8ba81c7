// Package config manages assetmirror configuration and filesystem paths.
//
// Configuration is read with viper from a YAML file, ASSETMIRROR_* environment
// variables and command-line flags, in increasing order of precedence. The
// default root is ~/.assetmirror/ containing the config file, run state and
// the default destination base.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// RootEnv overrides the root directory.
const RootEnv = "ASSETMIRROR_ROOT"

// Paths contains all the filesystem paths used by assetmirror.
type Paths struct {
	// Root is the base directory for all assetmirror data (default: ~/.assetmirror)
	Root string

	// State is the directory containing per-unit run records
	State string

	// Destination is the default destination base for mirrored units
	Destination string

	// Config is the path to the global config file
	Config string
}

// DefaultPaths returns the default paths for assetmirror.
// Paths can be overridden with environment variables:
// - ASSETMIRROR_ROOT: Override the root directory
func DefaultPaths() (*Paths, error) {
	root := os.Getenv(RootEnv)
	if root == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		root = filepath.Join(home, ".assetmirror")
	} else {
		expanded, err := homedir.Expand(root)
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", RootEnv, err)
		}
		root = expanded
	}

	return &Paths{
		Root:        root,
		State:       filepath.Join(root, "state"),
		Destination: filepath.Join(root, "mirror"),
		Config:      filepath.Join(root, "config.yaml"),
	}, nil
}

// EnsureDirectories creates the root and state directories if they don't exist.
// The destination base is left to the engine.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.Root,
		p.State,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
