package cli

import (
	"errors"

	"github.com/finnctl/finnctl/pkg/process"
	"github.com/finnctl/finnctl/pkg/types"
)

// Exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
)

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by Execute to a process exit code.
// Configuration errors exit 2, external commands forward their own status,
// everything else exits 1.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if types.IsConfigError(err) {
		return ExitConfigError
	}
	var procErr *process.ExitError
	if errors.As(err, &procErr) {
		return procErr.Code
	}
	return ExitFailure
}

// hint returns corrective advice for user errors, or ""
func hint(err error) string {
	switch {
	case errors.Is(err, types.ErrConfigMissing):
		return "create config.toml or activate a preset with: finnctl config <name>"
	case errors.Is(err, types.ErrFinnMissing):
		return "run finnctl init first to clone FINN"
	case errors.Is(err, types.ErrProjectNotFound):
		return "create the project with: finnctl create <model.onnx>"
	case errors.Is(err, types.ErrNoOutputDir):
		return "output directories must be prefixed with out_ and contain deploy/driver"
	case errors.Is(err, types.ErrProjectBusy):
		return "wait for the other finnctl process to finish"
	case errors.Is(err, types.ErrUnknownPreset):
		return "list the available presets with: finnctl config"
	}
	return ""
}
