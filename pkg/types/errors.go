package types

import "errors"

// Sentinel errors shared by all finnctl packages.
// Callers check them with errors.Is.
var (
	// ErrConfigMissing indicates the configuration document does not exist
	ErrConfigMissing = errors.New("configuration file not found")

	// ErrConfigInvalid indicates the configuration could not be parsed or validated
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrTemplateMissing indicates a template file referenced by the configuration is absent
	ErrTemplateMissing = errors.New("template file not found")

	// ErrUnknownPreset indicates a named configuration preset does not exist
	ErrUnknownPreset = errors.New("unknown configuration preset")

	// ErrUnknownRepository indicates a repository key is not configured
	ErrUnknownRepository = errors.New("unknown repository")

	// ErrArtifactNotFound indicates the input artifact path does not exist
	ErrArtifactNotFound = errors.New("input artifact not found")

	// ErrInvalidProjectName indicates no usable project name can be derived from an artifact path
	ErrInvalidProjectName = errors.New("invalid project name")

	// ErrProjectNotFound indicates the project directory does not exist
	ErrProjectNotFound = errors.New("project directory not found")

	// ErrProjectBusy indicates another finnctl process holds the project lock
	ErrProjectBusy = errors.New("project is locked by another process")

	// ErrNoOutputDir indicates no build output directory exists yet
	ErrNoOutputDir = errors.New("no output directory found, build the project first")

	// ErrFinnMissing indicates the compiler checkout has not been cloned
	ErrFinnMissing = errors.New("missing finn directory, run finnctl init first")

	// ErrNoEditor indicates no usable editor was found on PATH
	ErrNoEditor = errors.New("no editor available")

	// ErrDevModeUnsupported indicates setup was requested with dev_mode enabled
	ErrDevModeUnsupported = errors.New("building the C++ driver in dev mode is unsupported, set general.dev_mode to false")
)

// IsConfigError reports whether err is a fatal configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigMissing) ||
		errors.Is(err, ErrConfigInvalid) ||
		errors.Is(err, ErrTemplateMissing)
}
