package cli

import (
	"path/filepath"

	"github.com/finnctl/finnctl/pkg/types"
)

// Config holds the settings of the tool itself, as opposed to the pipeline configuration document
type Config struct {
	ConfigFile string
	Workdir    string
	Verbosity  string
	LogFile    string
	Version    string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		Workdir:   ".",
		Verbosity: "info",
	}
}

// ConfigPath returns the pipeline configuration path: --config, or config.toml in the working directory
func (c *Config) ConfigPath() string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	return filepath.Join(c.Workdir, types.DefaultConfig)
}
