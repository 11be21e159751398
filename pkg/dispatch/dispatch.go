// Package dispatch launches external FINN builds and verification drivers for projects
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	fcontext "github.com/finnctl/finnctl/pkg/context"
	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/process"
	"github.com/finnctl/finnctl/pkg/project"
	"github.com/finnctl/finnctl/pkg/state"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

// Config holds the environment profile values the dispatcher needs.
// Paths are absolute.
type Config struct {
	Workdir              string
	JobCommand           []string
	BuildScript          string
	PythonDriverScript   string
	CppDriverScript      string
	DriverPrefixCommands []string
	SingularityImage     string
	BaseEnv              []string
	Stdout               io.Writer
	Stderr               io.Writer
}

// Notifier is told about every finished dispatch
type Notifier interface {
	NotifyRunFinished(record types.RunRecord)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithRunStore records every dispatch in rs
func WithRunStore(rs *state.RunStore) Option {
	return func(d *Dispatcher) { d.runs = rs }
}

// WithNotifier reports finished dispatches to n
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher runs builds and drivers for projects
type Dispatcher struct {
	cfg      Config
	runner   process.Runner
	projects *project.Manager
	runs     *state.RunStore
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time
}

// New creates a dispatcher
func New(cfg Config, runner process.Runner, projects *project.Manager, log logger.Logger, opts ...Option) *Dispatcher {
	if cfg.BaseEnv == nil {
		cfg.BaseEnv = os.Environ()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	d := &Dispatcher{
		cfg:      cfg,
		runner:   runner,
		projects: projects,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run dispatches the FINN build of a project and waits for it.
//
// resumeStep is exported as BUILD_FLOW_RESUME_STEP for this invocation only.
// Empty means build from scratch. The step name is passed through verbatim;
// whether it was reached by an earlier run is the caller's responsibility.
//
// A non-zero exit of the job command is returned as *process.ExitError and
// not interpreted further.
func (d *Dispatcher) Run(ctx context.Context, name, resumeStep string) (*types.RunRecord, error) {
	name = project.CanonicalName(name)
	if err := d.requireFinn(); err != nil {
		return nil, err
	}
	if err := d.projects.Require(name); err != nil {
		return nil, err
	}

	unlock, err := d.projects.Locks().TryLock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	projectDir, err := filepath.Abs(d.projects.Dir(name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	env := d.baseEnv(types.EnvVar{Name: types.EnvResumeStep, Value: resumeStep})
	args := append(d.jobArgs(), d.cfg.BuildScript, projectDir)

	ctx = fcontext.WithRunID(ctx, "")
	log := logger.WithContext(ctx, d.logger).WithProject(name)
	if resumeStep != "" {
		log.Info("Resuming build", logger.WithField("step", resumeStep))
	} else {
		log.Info("Starting build from scratch")
	}

	return d.execute(ctx, name, types.RunKindBuild, resumeStep, process.Command{
		Name: d.cfg.JobCommand[0],
		Args: args,
		Env:  env,
		Dir:  d.cfg.Workdir,
	})
}

// LocateOutputDir returns the build output directory of a project: the
// lexicographically first child directory named with the out_ prefix.
func (d *Dispatcher) LocateOutputDir(name string) (string, error) {
	name = project.CanonicalName(name)
	if err := d.projects.Require(name); err != nil {
		return "", err
	}
	return LocateOutputDir(d.projects.Dir(name))
}

// DriverOptions tune a driver run
type DriverOptions struct {
	// Mode is passed to the C++ driver; ignored by the Python driver
	Mode string
}

// RunDriver runs a verification driver against the project's located output
func (d *Dispatcher) RunDriver(ctx context.Context, kind types.RunKind, name string, opts DriverOptions) (*types.RunRecord, error) {
	name = project.CanonicalName(name)
	if err := d.projects.Require(name); err != nil {
		return nil, err
	}

	outDir, err := d.LocateOutputDir(name)
	if err != nil {
		return nil, err
	}
	driverDir, err := filepath.Abs(filepath.Join(outDir, filepath.FromSlash(types.DriverSubpath)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve driver directory: %w", err)
	}

	var script string
	var extraArgs []string
	var extraEnv []types.EnvVar
	switch kind {
	case types.RunKindPythonDriver:
		script = d.cfg.PythonDriverScript
	case types.RunKindCppDriver:
		script = d.cfg.CppDriverScript
		mode := opts.Mode
		if mode == "" {
			mode = types.DefaultCppMode
		}
		extraArgs = []string{types.CppDriverModeArg, mode}
		extraEnv = append(extraEnv, types.EnvVar{
			Name:  types.EnvDriverPrefixes,
			Value: strings.Join(d.cfg.DriverPrefixCommands, "; "),
		})
	default:
		return nil, fmt.Errorf("unsupported driver kind %q", kind)
	}
	if script == "" {
		return nil, fmt.Errorf("%w: no run script configured for the %s", types.ErrConfigInvalid, kind)
	}

	unlock, err := d.projects.Locks().TryLock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	args := append(d.jobArgs(), script, driverDir)
	args = append(args, extraArgs...)

	ctx = fcontext.WithRunID(ctx, "")
	logger.WithContext(ctx, d.logger).WithProject(name).Info("Running driver",
		logger.WithField("driver", kind),
		logger.WithField("dir", driverDir))

	return d.execute(ctx, name, kind, "", process.Command{
		Name: d.cfg.JobCommand[0],
		Args: args,
		Env:  UnsetEnv(d.baseEnv(extraEnv...), types.EnvResumeStep),
		Dir:  d.cfg.Workdir,
	})
}

func (d *Dispatcher) execute(ctx context.Context, name string, kind types.RunKind, resumeStep string, cmd process.Command) (*types.RunRecord, error) {
	runID, _ := fcontext.RunID(ctx)
	log := logger.WithContext(ctx, d.logger).WithProject(name)

	logFile, err := d.openLogFile(name)
	if err != nil {
		log.Warn("Failed to open log file", logger.WithError(err))
	}
	defer func() {
		if logFile != nil {
			logFile.Close()
		}
	}()

	cmd.Stdout, cmd.Stderr = d.cfg.Stdout, d.cfg.Stderr
	if logFile != nil {
		cmd.Stdout = io.MultiWriter(d.cfg.Stdout, logFile)
		cmd.Stderr = io.MultiWriter(d.cfg.Stderr, logFile)
	}

	record := types.RunRecord{
		ID:         runID,
		Project:    name,
		Kind:       kind,
		ResumeStep: resumeStep,
		Args:       cmd.Argv(),
		StartedAt:  d.now(),
	}

	writeLog(logFile, "\n=== %s %s started at %s ===\n$ %s\n", kind, runID, record.StartedAt.Format(time.RFC3339), cmd)
	log.Debug("Executing", logger.WithField("command", cmd.String()))

	runErr := d.runner.Run(ctx, cmd)

	record.FinishedAt = d.now()
	record.ExitCode = process.ExitCode(runErr)
	if runErr != nil {
		record.Error = runErr.Error()
		writeLog(logFile, "=== %s FAILED after %s: %v ===\n", kind, record.Duration(), runErr)
		log.Error("Dispatch failed",
			logger.WithField("exit_code", record.ExitCode),
			logger.WithField("duration", record.Duration()))
	} else {
		writeLog(logFile, "=== %s finished after %s ===\n", kind, record.Duration())
		log.Success(fmt.Sprintf("%s finished in %s", kind, record.Duration().Round(time.Second)))
	}

	if d.runs != nil {
		if err := d.runs.Append(record); err != nil {
			log.Warn("Failed to record run", logger.WithError(err))
		}
	}
	if d.notifier != nil {
		d.notifier.NotifyRunFinished(record)
	}

	return &record, runErr
}

// baseEnv builds the child environment: the base environment with the
// orchestrator's variables replacing any inherited values.
func (d *Dispatcher) baseEnv(extra ...types.EnvVar) []string {
	vars := []types.EnvVar{{Name: types.EnvWorkdir, Value: d.cfg.Workdir}}
	if d.cfg.SingularityImage != "" {
		vars = append(vars, types.EnvVar{Name: types.EnvSingularity, Value: d.cfg.SingularityImage})
	}
	vars = append(vars, extra...)
	return MergeEnv(d.cfg.BaseEnv, vars...)
}

func (d *Dispatcher) jobArgs() []string {
	args := make([]string, 0, len(d.cfg.JobCommand)+4)
	return append(args, d.cfg.JobCommand[1:]...)
}

func (d *Dispatcher) requireFinn() error {
	if !utils.DirectoryExists(filepath.Join(d.cfg.Workdir, types.FinnDir)) {
		return types.ErrFinnMissing
	}
	return nil
}

func (d *Dispatcher) openLogFile(name string) (*os.File, error) {
	logDir := filepath.Join(d.cfg.Workdir, types.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.OpenFile(filepath.Join(logDir, name+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

func writeLog(f *os.File, format string, args ...interface{}) {
	if f != nil {
		fmt.Fprintf(f, format, args...)
	}
}
