// Package engine wires the finnctl components together from one loaded configuration.
//
// The implementation is split across files:
//   - engine.go: component construction and the pipeline operations
//   - factory.go: default collaborators (process runner, notifier, streams)
//   - status.go: per-project status reporting
//   - watch.go: configuration hot reload
//   - safegroup.go: panic-safe goroutine group
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/finnctl/finnctl/pkg/config"
	"github.com/finnctl/finnctl/pkg/dispatch"
	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/project"
	"github.com/finnctl/finnctl/pkg/repo"
	"github.com/finnctl/finnctl/pkg/state"
	"github.com/finnctl/finnctl/pkg/templater"
	"github.com/finnctl/finnctl/pkg/types"
)

// Engine owns every component built from the active configuration
type Engine struct {
	workdir    string
	configPath string
	logger     logger.Logger
	deps       Dependencies
	templater  *templater.ScriptTemplater
	detector   *state.ChangeDetector
	runs       *state.RunStore

	mu         sync.RWMutex
	doc        *config.Document
	env        types.EnvironmentConfig
	projects   *project.Manager
	dispatcher *dispatch.Dispatcher
	repo       *repo.Manager
}

// New builds an engine for doc rooted at workdir
func New(doc *config.Document, workdir string, log logger.Logger, deps Dependencies) (*Engine, error) {
	absWorkdir, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	log = logger.OrNop(log)

	e := &Engine{
		workdir:    absWorkdir,
		configPath: doc.Path,
		logger:     log,
		deps:       deps.withDefaults(),
		templater:  templater.New(log),
		detector:   state.NewChangeDetector(absWorkdir, log),
		runs:       state.NewRunStore(absWorkdir),
	}
	if err := e.apply(doc); err != nil {
		return nil, err
	}
	return e, nil
}

// apply rebuilds the configuration-dependent components
func (e *Engine) apply(doc *config.Document) error {
	env, err := doc.Config.Environment()
	if err != nil {
		return err
	}

	projects := project.NewManager(e.workdir, e.resolve(doc.Config.Finn.BuildTemplate), e.logger)

	repository := repo.NewManager(e.workdir, doc.Config.Finn, e.deps.Runner, e.logger)
	repository.SetOutput(e.deps.Stdout, e.deps.Stderr)
	repository.SetEnv(e.deps.BaseEnv)

	opts := []dispatch.Option{dispatch.WithRunStore(e.runs)}
	if e.deps.Notifier != nil {
		opts = append(opts, dispatch.WithNotifier(e.deps.Notifier))
	}
	dispatcher := dispatch.New(dispatch.Config{
		Workdir:              e.workdir,
		JobCommand:           env.JobCommand(),
		BuildScript:          e.resolve(env.FinnBuildScript),
		PythonDriverScript:   e.resolveOptional(env.PythonDriverRunScript),
		CppDriverScript:      e.resolveOptional(env.CppDriverRunScript),
		DriverPrefixCommands: env.DriverCompilerPrefixCommands,
		SingularityImage:     doc.Config.SingularityImage(),
		BaseEnv:              e.deps.BaseEnv,
		Stdout:               e.deps.Stdout,
		Stderr:               e.deps.Stderr,
	}, e.deps.Runner, projects, e.logger, opts...)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = doc
	e.env = env
	e.projects = projects
	e.repo = repository
	e.dispatcher = dispatcher
	return nil
}

// Workdir returns the absolute working directory
func (e *Engine) Workdir() string {
	return e.workdir
}

// Document returns the active configuration document
func (e *Engine) Document() *config.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc
}

// Projects returns the project manager for the active configuration
func (e *Engine) Projects() *project.Manager {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.projects
}

// Runs returns the run history store
func (e *Engine) Runs() *state.RunStore {
	return e.runs
}

// BuildScriptPath returns the absolute path of the environment build script
func (e *Engine) BuildScriptPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolve(e.env.FinnBuildScript)
}

// Reconcile regenerates the environment build script when the configuration changed
// since the last successful regeneration.
func (e *Engine) Reconcile(ctx context.Context) (bool, error) {
	doc := e.Document()
	return e.detector.Reconcile(ctx, doc.Fingerprint(), e.regenerator(doc))
}

// SetEnvVars regenerates the environment build script unconditionally
func (e *Engine) SetEnvVars(ctx context.Context) error {
	doc := e.Document()
	return e.detector.Force(ctx, doc.Fingerprint(), e.regenerator(doc))
}

func (e *Engine) regenerator(doc *config.Document) func() error {
	return func() error {
		env, err := doc.Config.Environment()
		if err != nil {
			return err
		}
		return e.templater.Render(
			e.resolve(env.FinnBuildScriptTemplate),
			e.resolve(env.FinnBuildScript),
			e.workdir,
			doc.Config.EnvVars,
		)
	}
}

// Init clones FINN and instantiates the build script
func (e *Engine) Init(ctx context.Context, opts repo.CloneOptions) error {
	if e.Document().Config.General.DevMode {
		return types.ErrDevModeUnsupported
	}
	if _, err := e.Clone(ctx, opts); err != nil {
		return err
	}
	if err := e.SetEnvVars(ctx); err != nil {
		return err
	}
	e.WarnSingularity()
	return nil
}

// Clone checks out the FINN repository unless it is already present
func (e *Engine) Clone(ctx context.Context, opts repo.CloneOptions) (bool, error) {
	e.mu.RLock()
	repository := e.repo
	e.mu.RUnlock()
	return repository.Clone(ctx, opts)
}

// UsePreset activates configurations/<name>.toml as the configuration at configPath
// and returns an engine for it with the build script regenerated. The active
// configuration does not have to be loadable, so a broken one can be replaced.
func UsePreset(ctx context.Context, workdir, configPath, name string, log logger.Logger, deps Dependencies) (*Engine, error) {
	doc, err := config.UsePreset(filepath.Join(workdir, types.PresetDir), name, configPath)
	if err != nil {
		return nil, err
	}
	e, err := New(doc, workdir, log, deps)
	if err != nil {
		return nil, err
	}
	if err := e.SetEnvVars(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Create materializes the project for an input artifact
func (e *Engine) Create(ctx context.Context, artifactPath string) (*project.Project, error) {
	return e.Projects().Create(ctx, artifactPath)
}

// Execute dispatches a from-scratch build of a project
func (e *Engine) Execute(ctx context.Context, name string) (*types.RunRecord, error) {
	return e.currentDispatcher().Run(ctx, name, "")
}

// Resume dispatches a build that continues from step
func (e *Engine) Resume(ctx context.Context, name, step string) (*types.RunRecord, error) {
	return e.currentDispatcher().Run(ctx, name, step)
}

// PythonDriver runs the Python verification driver for a project
func (e *Engine) PythonDriver(ctx context.Context, name string) (*types.RunRecord, error) {
	return e.currentDispatcher().RunDriver(ctx, types.RunKindPythonDriver, name, dispatch.DriverOptions{})
}

// CppDriver runs the C++ verification driver for a project
func (e *Engine) CppDriver(ctx context.Context, name, mode string) (*types.RunRecord, error) {
	return e.currentDispatcher().RunDriver(ctx, types.RunKindCppDriver, name, dispatch.DriverOptions{Mode: mode})
}

// Cleanup removes transient log and temporary files
func (e *Engine) Cleanup() ([]string, error) {
	return e.Projects().Cleanup()
}

// ListProjects returns the project names in the working directory
func (e *Engine) ListProjects() ([]string, error) {
	return e.Projects().List()
}

// Update pulls the workspace repository, keeping local changes
func (e *Engine) Update(ctx context.Context) error {
	e.mu.RLock()
	repository := e.repo
	e.mu.RUnlock()
	return repository.UpdateSelf(ctx)
}

// WarnSingularity warns when a singularity run is configured but the FINN
// checkout's run-docker.sh does not support it. It reports whether it warned.
func (e *Engine) WarnSingularity() bool {
	e.mu.RLock()
	doc, repository := e.doc, e.repo
	e.mu.RUnlock()

	image, _ := dispatch.LookupEnv(e.deps.BaseEnv, types.EnvSingularity)
	if doc.Config.General.UsedEnvironment != types.ClusterEnvName && doc.Config.SingularityImage() == "" && image == "" {
		return false
	}
	if repository.SingularityReady() {
		return false
	}
	e.logger.Warn("The cluster environment is selected but finn/run-docker.sh does not mention singularity. " +
		"If the job fails with \"docker: command not found\", patch singularity support into FINN before executing.")
	return true
}

func (e *Engine) currentDispatcher() *dispatch.Dispatcher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dispatcher
}

// resolve interprets configuration paths relative to the working directory
func (e *Engine) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workdir, path)
}

func (e *Engine) resolveOptional(path string) string {
	if path == "" {
		return ""
	}
	return e.resolve(path)
}
