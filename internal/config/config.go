// Package config loads CLI defaults for the cram command-line tools. It
// has no knowledge of the Cramfile format: it only prepares values that
// the CLI then passes into the public cram API as ordinary parameters.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds CLI defaults for pack and info.
type Config struct {
	DefaultFile   string `json:"default_file,omitempty"`   //nolint:tagliatelle
	DefaultNprocs uint32 `json:"default_nprocs,omitempty"` //nolint:tagliatelle
	DefaultExe    string `json:"default_exe,omitempty"`    //nolint:tagliatelle
}

// DefaultConfig returns the built-in defaults, the bottom of the
// precedence chain in Load.
func DefaultConfig() Config {
	return Config{
		DefaultFile:   "cram.job",
		DefaultNprocs: 1,
		DefaultExe:    "",
	}
}

// ConfigFileName is the project-local config file name.
const ConfigFileName = ".cram.json"

var (
	errFileNotFound = errors.New("config file not found")
	errFileRead     = errors.New("cannot read config file")
	errInvalid      = errors.New("invalid config file")
)

// Sources records which config files, if any, contributed to a Load.
type Sources struct {
	Global  string
	Project string
}

// Load resolves configuration with the following precedence (highest
// wins):
//  1. Defaults
//  2. Global user config (~/.config/cram/config.json, or
//     $XDG_CONFIG_HOME/cram/config.json if set)
//  3. Project config file (.cram.json in workDir), or an explicit file at
//     configPath if non-empty
//  4. cliOverrides, applied field by field where non-zero
func Load(workDir, configPath string, cliOverrides Config, env []string) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	globalCfg, globalPath, err := loadGlobal(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProject(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)
	cfg = merge(cfg, cliOverrides)

	return cfg, sources, nil
}

func globalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "cram", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cram", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "cram", "config.json")
}

func loadGlobal(env []string) (Config, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	var (
		file      string
		mustExist bool
	)

	if configPath != "" {
		file = configPath
		if !filepath.IsAbs(file) {
			file = filepath.Join(workDir, file)
		}

		mustExist = true

		if _, err := os.Stat(file); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errFileNotFound, configPath)
		}
	} else {
		file = filepath.Join(workDir, ConfigFileName)
	}

	cfg, loaded, err := loadFile(file, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, file, nil
}

func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", errFileRead, path)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errInvalid, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errInvalid, path, err)
	}

	return cfg, true, nil
}

func merge(base, overlay Config) Config {
	if overlay.DefaultFile != "" {
		base.DefaultFile = overlay.DefaultFile
	}

	if overlay.DefaultNprocs != 0 {
		base.DefaultNprocs = overlay.DefaultNprocs
	}

	if overlay.DefaultExe != "" {
		base.DefaultExe = overlay.DefaultExe
	}

	return base
}
