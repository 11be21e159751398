// Package repo manages the FINN compiler checkout and the workspace's own repository
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/process"
	"github.com/finnctl/finnctl/pkg/types"
)

// CloneOptions selects what to check out. Empty fields fall back to the configured defaults.
type CloneOptions struct {
	Source string
	Branch string
	Commit string
}

// Manager runs git for the workspace
type Manager struct {
	workdir string
	finn    types.FinnConfig
	runner  process.Runner
	env     []string
	stdout  io.Writer
	stderr  io.Writer
	logger  logger.Logger
}

// NewManager creates a repository manager
func NewManager(workdir string, finn types.FinnConfig, runner process.Runner, log logger.Logger) *Manager {
	return &Manager{
		workdir: workdir,
		finn:    finn,
		runner:  runner,
		env:     os.Environ(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		logger:  logger.OrNop(log),
	}
}

// SetOutput redirects the output of git
func (m *Manager) SetOutput(stdout, stderr io.Writer) {
	m.stdout, m.stderr = stdout, stderr
}

// SetEnv replaces the environment git runs with
func (m *Manager) SetEnv(env []string) {
	m.env = env
}

// FinnPath returns the path of the compiler checkout
func (m *Manager) FinnPath() string {
	return filepath.Join(m.workdir, types.FinnDir)
}

// Cloned reports whether the compiler checkout exists
func (m *Manager) Cloned() bool {
	info, err := os.Stat(m.FinnPath())
	return err == nil && info.IsDir()
}

// Clone checks out the compiler repository into finn/. An existing checkout is left alone.
// It returns whether a clone was performed.
func (m *Manager) Clone(ctx context.Context, opts CloneOptions) (bool, error) {
	source := opts.Source
	if source == "" {
		source = m.finn.DefaultRepository
	}
	url, ok := m.finn.Repositories[source]
	if !ok {
		return false, fmt.Errorf("%w: %s", types.ErrUnknownRepository, source)
	}

	if m.Cloned() {
		m.logger.Info("FINN is already cloned, skipping", logger.WithField("path", m.FinnPath()))
		return false, nil
	}

	branch := opts.Branch
	if branch == "" {
		branch = m.finn.DefaultBranch
	}
	commit := opts.Commit
	if commit == "" && opts.Branch == "" {
		commit = m.finn.DefaultCommitHash
	}

	m.logger.Info("Cloning FINN",
		logger.WithField("repository", source),
		logger.WithField("branch", branch))

	if err := m.git(ctx, m.workdir, "clone", url, types.FinnDir); err != nil {
		return false, err
	}

	steps := [][]string{{"checkout", branch}}
	if commit != "" {
		steps = append(steps, []string{"checkout", commit})
	}
	steps = append(steps, []string{"submodule", "init"}, []string{"submodule", "update"})

	for _, args := range steps {
		if err := m.git(ctx, m.FinnPath(), args...); err != nil {
			return true, err
		}
	}

	m.logger.Success("FINN cloned")
	return true, nil
}

// UpdateSelf pulls the workspace repository while preserving local changes
func (m *Manager) UpdateSelf(ctx context.Context) error {
	steps := [][]string{
		{"stash", "push", "-q"},
		{"pull"},
		{"stash", "pop", "-q"},
	}
	for i, args := range steps {
		err := m.git(ctx, m.workdir, args...)
		if err == nil {
			continue
		}
		// nothing stashed means nothing to pop
		if i == len(steps)-1 {
			m.logger.Debug("No stashed changes restored", logger.WithError(err))
			continue
		}
		return err
	}
	return nil
}

// SingularityReady reports whether finn/run-docker.sh mentions singularity.
// A missing checkout is reported as ready; there is nothing to check yet.
func (m *Manager) SingularityReady() bool {
	data, err := os.ReadFile(filepath.Join(m.FinnPath(), "run-docker.sh"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Debug("Failed to read run-docker.sh", logger.WithError(err))
		}
		return true
	}
	text := string(data)
	return strings.Contains(text, "singularity") || strings.Contains(text, "SINGULARITY")
}

func (m *Manager) git(ctx context.Context, dir string, args ...string) error {
	cmd := process.Command{
		Name:   "git",
		Args:   args,
		Env:    m.env,
		Dir:    dir,
		Stdout: m.stdout,
		Stderr: m.stderr,
	}
	m.logger.Debug("Running git", logger.WithField("command", cmd.String()), logger.WithField("dir", dir))
	if err := m.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
