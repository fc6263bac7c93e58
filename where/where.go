// Package where implements a cross-platform resolver for application-specific filesystem paths.
package where

import (
	"os"
	"path/filepath"

	"github.com/playbridge/playbridge/constant"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/samber/lo"
)

// EnvConfigPath is the environment variable identifier used to override the default configuration directory.
const EnvConfigPath = "PLAYBRIDGE_CONFIG_PATH"

// EnvResourcesPath overrides the directory bundled resources are looked up in.
const EnvResourcesPath = "PLAYBRIDGE_RESOURCES_PATH"

func ensureDir(path string) string {
	lo.Must0(filesystem.API().MkdirAll(path, os.ModePerm))
	return path
}

// Config resolves the absolute path to the primary application configuration directory.
// It prioritizes the XDG_CONFIG_HOME specification on Linux and equivalent user profile paths on Darwin and Windows.
func Config() string {
	if custom, ok := os.LookupEnv(EnvConfigPath); ok {
		return ensureDir(custom)
	}

	base := lo.Must(os.UserConfigDir())
	return ensureDir(filepath.Join(base, constant.App))
}

// Cache resolves the absolute path to the application's persistent cache directory.
func Cache() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = filepath.Join(".", "cache")
	}
	return ensureDir(filepath.Join(base, constant.App))
}

// Logs resolves the directory used for application diagnostic logs.
func Logs() string {
	return ensureDir(filepath.Join(Config(), "logs"))
}

// Resources resolves the directory that FromResource sources are read from.
func Resources() string {
	if custom, ok := os.LookupEnv(EnvResourcesPath); ok {
		return ensureDir(custom)
	}

	return ensureDir(filepath.Join(Config(), "resources"))
}

// Probes resolves the cache file holding manifest probe results.
func Probes() string {
	return filepath.Join(Cache(), "probes.json")
}

// History resolves the file holding resume positions.
func History() string {
	return filepath.Join(Config(), "history.json")
}

// Recent resolves the file holding recently played sources.
func Recent() string {
	return filepath.Join(Cache(), "recent.json")
}

// Temp resolves a volatile directory for transient artifacts such as mpv IPC sockets.
func Temp() string {
	return ensureDir(filepath.Join(os.TempDir(), constant.App))
}
