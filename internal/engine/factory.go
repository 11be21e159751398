package engine

import (
	"io"
	"os"
	"os/exec"

	"github.com/finnctl/finnctl/pkg/config"
	"github.com/finnctl/finnctl/pkg/dispatch"
	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/notifier"
	"github.com/finnctl/finnctl/pkg/process"
)

// Dependencies are the collaborators the engine does not derive from configuration
type Dependencies struct {
	Runner   process.Runner
	Notifier dispatch.Notifier
	BaseEnv  []string
	LookPath func(file string) (string, error)
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Runner == nil {
		d.Runner = process.NewExecRunner()
	}
	if d.BaseEnv == nil {
		d.BaseEnv = os.Environ()
	}
	if d.LookPath == nil {
		d.LookPath = exec.LookPath
	}
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}
	return d
}

// DependencyFactory creates the default collaborators for a configuration
type DependencyFactory struct {
	logger logger.Logger
	doc    *config.Document
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(log logger.Logger, doc *config.Document) *DependencyFactory {
	return &DependencyFactory{
		logger: logger.OrNop(log),
		doc:    doc,
	}
}

// CreateDefaults creates the production collaborators
func (f *DependencyFactory) CreateDefaults() Dependencies {
	deps := Dependencies{
		Runner: process.NewExecRunner(),
	}
	if f.doc.Config.General.Notifications {
		deps.Notifier = f.createNotifier()
	}
	return deps.withDefaults()
}

// CreateWithOverrides creates the defaults and replaces every non-nil override
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) Dependencies {
	deps := f.CreateDefaults()

	if overrides.Runner != nil {
		deps.Runner = overrides.Runner
	}
	if overrides.Notifier != nil {
		deps.Notifier = overrides.Notifier
	}
	if overrides.BaseEnv != nil {
		deps.BaseEnv = overrides.BaseEnv
	}
	if overrides.LookPath != nil {
		deps.LookPath = overrides.LookPath
	}
	if overrides.Stdin != nil {
		deps.Stdin = overrides.Stdin
	}
	if overrides.Stdout != nil {
		deps.Stdout = overrides.Stdout
	}
	if overrides.Stderr != nil {
		deps.Stderr = overrides.Stderr
	}

	return deps
}

func (f *DependencyFactory) createNotifier() dispatch.Notifier {
	return notifier.New(notifier.Config{Enabled: true, Beep: true}, f.logger)
}
