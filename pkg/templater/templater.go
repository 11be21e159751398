// Package templater instantiates environment launch scripts from templates
package templater

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
	"github.com/finnctl/finnctl/pkg/validation"
)

// ScriptTemplater renders the environment build script
type ScriptTemplater struct {
	logger logger.Logger
}

// New creates a new script templater
func New(log logger.Logger) *ScriptTemplater {
	return &ScriptTemplater{logger: logger.OrNop(log)}
}

// ExportBlock builds one export statement per variable, in order
func ExportBlock(vars types.EnvVars) string {
	var b strings.Builder
	for _, v := range vars {
		fmt.Fprintf(&b, "export %s=\"%s\"\n", v.Name, v.Value)
	}
	return b.String()
}

// Substitute replaces the workdir and envvar placeholders in template text.
// All other content passes through unchanged.
func Substitute(template, workdir string, vars types.EnvVars) string {
	text := strings.ReplaceAll(template, types.PlaceholderWorkdir, workdir)
	return strings.ReplaceAll(text, types.PlaceholderEnvVars, ExportBlock(vars))
}

// Instantiate reads the template at templatePath and returns the substituted script
func (t *ScriptTemplater) Instantiate(templatePath, workdir string, vars types.EnvVars) (string, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: build script template %s", types.ErrTemplateMissing, templatePath)
		}
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return Substitute(string(data), workdir, vars), nil
}

// Validate logs advisory warnings about the toolchain variables and returns them
func (t *ScriptTemplater) Validate(vars types.EnvVars) []validation.Finding {
	result := validation.ValidateToolchain(vars)
	for _, f := range result.Findings {
		t.logger.Warn(f.Message, logger.WithField("variable", f.Variable))
	}
	return result.Findings
}

// Write replaces dest with contents in one step
func (t *ScriptTemplater) Write(dest, contents string) error {
	if err := utils.WriteFileAtomic(dest, []byte(contents), 0755); err != nil {
		return fmt.Errorf("failed to write build script: %w", err)
	}
	return nil
}

// Render validates, instantiates and writes the build script
func (t *ScriptTemplater) Render(templatePath, dest, workdir string, vars types.EnvVars) error {
	t.Validate(vars)

	contents, err := t.Instantiate(templatePath, workdir, vars)
	if err != nil {
		return err
	}
	if err := t.Write(dest, contents); err != nil {
		return err
	}

	t.logger.Info("Build script instantiated",
		logger.WithField("template", templatePath),
		logger.WithField("script", dest))
	return nil
}
