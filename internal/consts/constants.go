package consts

import (
	"path/filepath"
)

// Constants for configuration paths and defaults
const (
	AppName           = "forgeguard"
	DefaultDirName    = ".forgeguard"
	StateFileName     = "state.json"
	DefaultEnvFile    = ".env"
	DefaultConfigFile = "forgeguard.yaml"
)

// GetStateFilePath returns the transaction log path for a project root.
func GetStateFilePath(root string) string {
	return filepath.Join(root, DefaultDirName, StateFileName)
}
