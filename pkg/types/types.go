// Package types provides core types and configuration for finnctl
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Placeholders recognized in templates
const (
	PlaceholderWorkdir   = "<FINN_WORKDIR>"
	PlaceholderEnvVars   = "<SET_ENVVARS>"
	PlaceholderInputName = "<ONNX_INPUT_NAME>"
)

// Environment variables exported to external processes
const (
	EnvWorkdir        = "FINN_WORKDIR"
	EnvSingularity    = "FINN_SINGULARITY"
	EnvResumeStep     = "BUILD_FLOW_RESUME_STEP"
	EnvDriverPrefixes = "FINN_DRIVER_PREFIX_COMMANDS"
)

// Toolchain path variables checked by the templater
const (
	EnvVivadoPath     = "VIVADO_PATH"
	EnvVitisPath      = "VITIS_PATH"
	EnvHLSPath        = "HLS_PATH"
	EnvFinnXilinxPath = "FINN_XILINX_PATH"
)

// Filesystem conventions
const (
	ArtifactSuffix   = ".onnx"
	BuildScriptName  = "build.py"
	OutputDirPrefix  = "out_"
	FingerprintFile  = ".info"
	FinnDir          = "finn"
	FinnTmpDir       = "FINN_TMP"
	DataDir          = ".finnctl"
	PresetDir        = "configurations"
	DefaultConfig    = "config.toml"
	ClusterEnvName   = "cluster"
	DriverSubpath    = "deploy/driver"
	DefaultCppMode   = "throughput"
	CppDriverModeArg = "--mode"
)

// Config is the parsed pipeline configuration document
type Config struct {
	General      GeneralConfig                `toml:"general"`
	Environments map[string]EnvironmentConfig `toml:"environment"`
	Finn         FinnConfig                   `toml:"finn"`
	Build        BuildConfig                  `toml:"build"`

	// EnvVars holds build.envvars in document order
	EnvVars EnvVars `toml:"-"`
}

// GeneralConfig selects the active environment profile
type GeneralConfig struct {
	UsedEnvironment  string `toml:"used_environment"`
	DevMode          bool   `toml:"dev_mode"`
	SingularityImage string `toml:"singularity_image"`
	Notifications    bool   `toml:"notifications"`
}

// EnvironmentConfig is one environment profile
type EnvironmentConfig struct {
	DriverCompilerPrefixCommands []string `toml:"driver_compiler_prefix_commands"`
	JobExecution                 string   `toml:"job_execution"`
	FinnBuildScript              string   `toml:"finn_build_script"`
	FinnBuildScriptTemplate      string   `toml:"finn_build_script_template"`
	CppDriverRunScript           string   `toml:"cppdriver_run_script"`
	PythonDriverRunScript        string   `toml:"pythondriver_run_script"`
}

// JobCommand splits the job execution setting into an argv prefix
func (e EnvironmentConfig) JobCommand() []string {
	return strings.Fields(e.JobExecution)
}

// FinnConfig describes where the compiler repository comes from
type FinnConfig struct {
	Repositories      map[string]string `toml:"repositories"`
	DefaultRepository string            `toml:"default_repository"`
	DefaultBranch     string            `toml:"default_branch"`
	DefaultCommitHash string            `toml:"default_commit_hash"`
	BuildTemplate     string            `toml:"build_template"`
}

// BuildConfig holds variables exported into generated scripts
type BuildConfig struct {
	EnvVars map[string]string `toml:"envvars"`
}

// Environment returns the active environment profile
func (c *Config) Environment() (EnvironmentConfig, error) {
	env, ok := c.Environments[c.General.UsedEnvironment]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("%w: environment %q is not defined", ErrConfigInvalid, c.General.UsedEnvironment)
	}
	return env, nil
}

// Repository resolves a repository key to its URL. An empty key selects the default.
func (c *Config) Repository(key string) (string, error) {
	if key == "" {
		key = c.Finn.DefaultRepository
	}
	url, ok := c.Finn.Repositories[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRepository, key)
	}
	return url, nil
}

// SingularityImage returns the image exported for cluster runs, or "" when unused
func (c *Config) SingularityImage() string {
	if c.General.UsedEnvironment != ClusterEnvName {
		return ""
	}
	return c.General.SingularityImage
}

// EnvVar is a single exported variable
type EnvVar struct {
	Name  string
	Value string
}

// EnvVars is an ordered variable mapping
type EnvVars []EnvVar

// Get returns the value of name and whether it is present
func (e EnvVars) Get(name string) (string, bool) {
	for _, v := range e {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// Fingerprint is a SHA-256 digest of a configuration document
type Fingerprint [32]byte

// String returns the lowercase hex form persisted in the state file
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint decodes a hex fingerprint
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return fp, fmt.Errorf("invalid fingerprint: %w", err)
	}
	if len(raw) != len(fp) {
		return fp, fmt.Errorf("invalid fingerprint length %d", len(raw))
	}
	copy(fp[:], raw)
	return fp, nil
}

// RunKind identifies what a dispatch executed
type RunKind string

const (
	RunKindBuild        RunKind = "build"
	RunKindPythonDriver RunKind = "pythondriver"
	RunKindCppDriver    RunKind = "cppdriver"
)

// RunRecord is one dispatch of an external command for a project
type RunRecord struct {
	ID         string    `yaml:"id"`
	Project    string    `yaml:"project"`
	Kind       RunKind   `yaml:"kind"`
	ResumeStep string    `yaml:"resume_step,omitempty"`
	Args       []string  `yaml:"args"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	ExitCode   int       `yaml:"exit_code"`
	Error      string    `yaml:"error,omitempty"`
}

// Duration returns how long the run took
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
