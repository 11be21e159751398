// Package validation provides advisory checks of the toolchain variables exported into build scripts
package validation

import (
	"fmt"
	"strings"

	"github.com/finnctl/finnctl/pkg/types"
)

// RequiredToolchainVars must be set for the FINN toolchain to work
var RequiredToolchainVars = []string{
	types.EnvVivadoPath,
	types.EnvVitisPath,
	types.EnvHLSPath,
}

// Finding is a single advisory warning about one variable
type Finding struct {
	Variable string
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Variable, f.Message)
}

// ValidationResult contains validation findings
type ValidationResult struct {
	Findings []Finding
}

// Add appends a finding
func (r *ValidationResult) Add(variable, message string) {
	r.Findings = append(r.Findings, Finding{Variable: variable, Message: message})
}

// OK reports whether no findings were recorded
func (r *ValidationResult) OK() bool {
	return len(r.Findings) == 0
}

// ValidateToolchain checks the exported variables for unset toolchain paths
// and for toolchain paths outside the FINN_XILINX_PATH installation.
// Every finding is a warning; the toolchain itself cannot be verified from here.
func ValidateToolchain(vars types.EnvVars) *ValidationResult {
	result := &ValidationResult{}

	for _, name := range RequiredToolchainVars {
		if v, ok := vars.Get(name); !ok || v == "" {
			result.Add(name,
				"not set and not provided in config.toml. Either set the path in config.toml or supply it otherwise to the container")
		}
	}

	base, ok := vars.Get(types.EnvFinnXilinxPath)
	if !ok {
		return result
	}
	for _, name := range RequiredToolchainVars {
		v, ok := vars.Get(name)
		if !ok || v == "" {
			continue
		}
		if !strings.HasPrefix(v, base) {
			result.Add(name,
				fmt.Sprintf("path %q does not share the %s root %q; paths or versions don't match", v, types.EnvFinnXilinxPath, base))
		}
	}

	return result
}
