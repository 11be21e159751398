// Package project manages FINN project directories.
//
// A project is created by a sequence of individually idempotent steps:
// directory, input artifact copy, build script. There is no rollback; a
// failure part-way leaves the completed steps in place and re-running the
// same command repairs the project.
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

// excludedDirs are workdir children that are never projects
var excludedDirs = map[string]bool{
	"build_scripts":  true,
	"configurations": true,
	"pre-builds":     true,
	"run_scripts":    true,
	types.FinnDir:    true,
	types.FinnTmpDir: true,
}

// Project is a materialized project directory
type Project struct {
	Name        string
	Dir         string
	InputPath   string
	BuildScript string
}

// Manager owns the project directories under a working directory
type Manager struct {
	workdir       string
	buildTemplate string
	locks         *Locker
	logger        logger.Logger
}

// NewManager creates a project manager. buildTemplate is the pipeline build
// template copied into each new project.
func NewManager(workdir, buildTemplate string, log logger.Logger) *Manager {
	return &Manager{
		workdir:       workdir,
		buildTemplate: buildTemplate,
		locks:         NewLocker(workdir),
		logger:        logger.OrNop(log),
	}
}

// NameFor derives the project name from an input artifact path
func NameFor(artifactPath string) string {
	return strings.TrimSuffix(filepath.Base(artifactPath), types.ArtifactSuffix)
}

// CanonicalName cleans a project argument, so "mnist/" and "./mnist" name the mnist project
func CanonicalName(name string) string {
	if name == "" {
		return name
	}
	return filepath.Clean(name)
}

// ValidateName rejects names that would not map to a dedicated child directory
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", types.ErrInvalidProjectName, name)
	}
	return nil
}

// Dir returns the project directory for name
func (m *Manager) Dir(name string) string {
	return filepath.Join(m.workdir, name)
}

// InputPath returns the canonical location of the project's input artifact
func (m *Manager) InputPath(name string) string {
	return filepath.Join(m.Dir(name), name+types.ArtifactSuffix)
}

// BuildScriptPath returns the location of the project's build.py
func (m *Manager) BuildScriptPath(name string) string {
	return filepath.Join(m.Dir(name), types.BuildScriptName)
}

// Locks returns the per-project lock registry
func (m *Manager) Locks() *Locker {
	return m.locks
}

// Exists reports whether the project directory exists
func (m *Manager) Exists(name string) bool {
	name = CanonicalName(name)
	if ValidateName(name) != nil {
		return false
	}
	info, err := os.Stat(m.Dir(name))
	return err == nil && info.IsDir()
}

// Require returns ErrProjectNotFound unless the project directory exists
func (m *Manager) Require(name string) error {
	if !m.Exists(name) {
		return fmt.Errorf("%w: %s", types.ErrProjectNotFound, m.Dir(CanonicalName(name)))
	}
	return nil
}

// EnsureDir creates the project directory if absent
func (m *Manager) EnsureDir(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	if m.Exists(name) {
		return false, nil
	}
	if err := os.Mkdir(m.Dir(name), 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create project directory: %w", err)
	}
	return true, nil
}

// EnsureInputCopied copies the artifact into its project unless a copy is already present
func (m *Manager) EnsureInputCopied(artifactPath string) (bool, error) {
	info, err := os.Stat(artifactPath)
	if err != nil || info.IsDir() {
		return false, fmt.Errorf("%w: cannot find ONNX file at %s, please specify a valid ONNX file path", types.ErrArtifactNotFound, artifactPath)
	}

	target := m.InputPath(NameFor(artifactPath))
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}

	if err := utils.CopyFileAtomic(artifactPath, target, 0644); err != nil {
		return false, fmt.Errorf("failed to copy input artifact: %w", err)
	}
	return true, nil
}

// EnsureBuildScript writes build.py from the pipeline template unless it already exists
func (m *Manager) EnsureBuildScript(name string) (bool, error) {
	target := m.BuildScriptPath(name)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}

	data, err := os.ReadFile(m.buildTemplate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: couldn't find build script template at %s, please correct finn.build_template", types.ErrTemplateMissing, m.buildTemplate)
		}
		return false, fmt.Errorf("failed to read build template: %w", err)
	}

	script := strings.ReplaceAll(string(data), types.PlaceholderInputName, name+types.ArtifactSuffix)
	if err := utils.WriteFileAtomic(target, []byte(script), 0644); err != nil {
		return false, fmt.Errorf("failed to write build script: %w", err)
	}
	return true, nil
}

// Create runs the ensure steps for the artifact in order, stopping at the first failure
func (m *Manager) Create(ctx context.Context, artifactPath string) (*Project, error) {
	name := NameFor(artifactPath)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	log := logger.WithContext(ctx, m.logger).WithProject(name)

	unlock, err := m.locks.TryLock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	steps := []struct {
		what string
		run  func() (bool, error)
	}{
		{"project directory", func() (bool, error) { return m.EnsureDir(name) }},
		{"input artifact", func() (bool, error) { return m.EnsureInputCopied(artifactPath) }},
		{"build script", func() (bool, error) { return m.EnsureBuildScript(name) }},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed, err := step.run()
		if err != nil {
			return nil, err
		}
		if changed {
			log.Info("Created " + step.what)
		} else {
			log.Debug("Already present: " + step.what)
		}
	}

	return &Project{
		Name:        name,
		Dir:         m.Dir(name),
		InputPath:   m.InputPath(name),
		BuildScript: m.BuildScriptPath(name),
	}, nil
}

// List returns the projects in the working directory, sorted by name
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to read working directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || excludedDirs[name] || strings.HasPrefix(name, ".") {
			continue
		}
		if _, err := os.Stat(m.BuildScriptPath(name)); err == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup removes transient log and temporary build files and returns what was removed
func (m *Manager) Cleanup() ([]string, error) {
	targets, err := filepath.Glob(filepath.Join(m.workdir, "*.out"))
	if err != nil {
		return nil, err
	}
	targets = append(targets,
		filepath.Join(m.workdir, types.FinnTmpDir),
		filepath.Join(m.workdir, types.DataDir, "logs"),
	)

	var removed []string
	for _, path := range targets {
		if _, err := os.Lstat(path); err != nil {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		m.logger.Debug("Removed", logger.WithField("path", path))
		removed = append(removed, path)
	}
	return removed, nil
}
