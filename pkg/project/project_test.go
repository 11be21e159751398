package project_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnctl/finnctl/pkg/project"
	"github.com/finnctl/finnctl/pkg/types"
)

const buildTemplate = `model_file = "<ONNX_INPUT_NAME>"
cfg = build.DataflowBuildConfig(output_dir="out_dir")
`

type fixture struct {
	workdir  string
	template string
	artifact string
	manager  *project.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	workdir := t.TempDir()

	template := filepath.Join(workdir, "build_scripts", "build_template.py")
	require.NoError(t, os.MkdirAll(filepath.Dir(template), 0755))
	require.NoError(t, os.WriteFile(template, []byte(buildTemplate), 0644))

	artifact := filepath.Join(t.TempDir(), "models", "model.onnx")
	require.NoError(t, os.MkdirAll(filepath.Dir(artifact), 0755))
	require.NoError(t, os.WriteFile(artifact, []byte("onnx-bytes"), 0644))

	return &fixture{
		workdir:  workdir,
		template: template,
		artifact: artifact,
		manager:  project.NewManager(workdir, template, nil),
	}
}

func TestNameFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"foo/bar/model.onnx", "model"},
		{"model.onnx", "model"},
		{"/abs/resnet50.onnx", "resnet50"},
		{"model.onnx.onnx", "model.onnx"},
		{"onnx_model.bin", "onnx_model.bin"},
		{"my.onnx.model.onnx", "my.onnx.model"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, project.NameFor(tt.path))
		})
	}
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"", ".", "..", ".hidden"} {
		assert.ErrorIs(t, project.ValidateName(name), types.ErrInvalidProjectName, "name %q", name)
	}
	assert.NoError(t, project.ValidateName("mnist"))
}

func TestEnsureDir_Idempotent(t *testing.T) {
	f := newFixture(t)

	created, err := f.manager.EnsureDir("mnist")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.manager.EnsureDir("mnist")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, f.manager.Exists("mnist"))
}

func TestEnsureInputCopied_Idempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.EnsureDir("model")
	require.NoError(t, err)

	copied, err := f.manager.EnsureInputCopied(f.artifact)
	require.NoError(t, err)
	assert.True(t, copied)

	// A later change to the source must not overwrite the existing copy
	require.NoError(t, os.WriteFile(f.artifact, []byte("changed"), 0644))
	copied, err = f.manager.EnsureInputCopied(f.artifact)
	require.NoError(t, err)
	assert.False(t, copied)

	data, err := os.ReadFile(f.manager.InputPath("model"))
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(data))
}

func TestEnsureInputCopied_MissingSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.EnsureInputCopied(filepath.Join(f.workdir, "missing.onnx"))
	assert.ErrorIs(t, err, types.ErrArtifactNotFound)
}

func TestEnsureBuildScript_Idempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.EnsureDir("model")
	require.NoError(t, err)

	written, err := f.manager.EnsureBuildScript("model")
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(f.manager.BuildScriptPath("model"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `model_file = "model.onnx"`)
	assert.NotContains(t, string(data), types.PlaceholderInputName)

	// User edits survive re-entry
	require.NoError(t, os.WriteFile(f.manager.BuildScriptPath("model"), []byte("edited"), 0644))
	written, err = f.manager.EnsureBuildScript("model")
	require.NoError(t, err)
	assert.False(t, written)

	data, err = os.ReadFile(f.manager.BuildScriptPath("model"))
	require.NoError(t, err)
	assert.Equal(t, "edited", string(data))
}

func TestEnsureBuildScript_MissingTemplate(t *testing.T) {
	f := newFixture(t)
	m := project.NewManager(f.workdir, filepath.Join(f.workdir, "nope.py"), nil)
	_, err := m.EnsureDir("model")
	require.NoError(t, err)

	_, err = m.EnsureBuildScript("model")
	assert.ErrorIs(t, err, types.ErrTemplateMissing)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	p, err := f.manager.Create(context.Background(), f.artifact)
	require.NoError(t, err)
	assert.Equal(t, "model", p.Name)
	assert.Equal(t, filepath.Join(f.workdir, "model"), p.Dir)
	assert.FileExists(t, p.InputPath)
	assert.FileExists(t, p.BuildScript)
}

func TestCreate_TwiceLeavesOneCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, f.artifact)
	require.NoError(t, err)
	_, err = f.manager.Create(ctx, f.artifact)
	require.NoError(t, err)

	entries, err := os.ReadDir(f.manager.Dir("model"))
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"model.onnx", "build.py"}, names)
}

func TestCreate_PartialFailureIsRepairedByRerun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Template missing: directory and artifact remain, script absent
	broken := project.NewManager(f.workdir, filepath.Join(f.workdir, "missing_template.py"), nil)
	_, err := broken.Create(ctx, f.artifact)
	require.ErrorIs(t, err, types.ErrTemplateMissing)
	assert.DirExists(t, broken.Dir("model"))
	assert.FileExists(t, broken.InputPath("model"))
	assert.NoFileExists(t, broken.BuildScriptPath("model"))

	_, err = f.manager.Create(ctx, f.artifact)
	require.NoError(t, err)

	entries, err := os.ReadDir(f.manager.Dir("model"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCreate_MissingArtifactKeepsDirectory(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Create(context.Background(), filepath.Join(f.workdir, "ghost.onnx"))
	require.ErrorIs(t, err, types.ErrArtifactNotFound)
	assert.DirExists(t, f.manager.Dir("ghost"), "completed steps are not rolled back")
	assert.NoFileExists(t, f.manager.BuildScriptPath("ghost"))
}

func TestCreate_BusyProject(t *testing.T) {
	f := newFixture(t)

	unlock, err := f.manager.Locks().TryLock("model")
	require.NoError(t, err)
	defer unlock()

	_, err = f.manager.Create(context.Background(), f.artifact)
	assert.ErrorIs(t, err, types.ErrProjectBusy)
}

func TestRequire(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.manager.Require("model"), types.ErrProjectNotFound)

	_, err := f.manager.EnsureDir("model")
	require.NoError(t, err)
	assert.NoError(t, f.manager.Require("model"))
}

func TestRequire_AcceptsPathForms(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.EnsureDir("model")
	require.NoError(t, err)

	for _, name := range []string{"model/", "./model", "model//"} {
		assert.NoError(t, f.manager.Require(name), "name %q", name)
	}
	for _, name := range []string{"../model", "nested/model", "/model"} {
		assert.ErrorIs(t, f.manager.Require(name), types.ErrProjectNotFound, "name %q", name)
	}
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "mnist", project.CanonicalName("mnist/"))
	assert.Equal(t, "mnist", project.CanonicalName("./mnist"))
	assert.Equal(t, "", project.CanonicalName(""))
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		artifact := filepath.Join(t.TempDir(), name+".onnx")
		require.NoError(t, os.WriteFile(artifact, []byte("x"), 0644))
		_, err := f.manager.Create(ctx, artifact)
		require.NoError(t, err)
	}

	// Directories without build.py and housekeeping directories are not projects
	require.NoError(t, os.MkdirAll(filepath.Join(f.workdir, "empty"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(f.workdir, "configurations"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.workdir, "configurations", "build.py"), nil, 0644))

	names, err := f.manager.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"slurm-1.out", "slurm-2.out", "keep.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(f.workdir, name), []byte("log"), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(f.workdir, "FINN_TMP", "code_gen"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(f.workdir, ".finnctl", "logs"), 0755))

	removed, err := f.manager.Cleanup()
	require.NoError(t, err)
	assert.Len(t, removed, 4)

	assert.NoFileExists(t, filepath.Join(f.workdir, "slurm-1.out"))
	assert.NoDirExists(t, filepath.Join(f.workdir, "FINN_TMP"))
	assert.FileExists(t, filepath.Join(f.workdir, "keep.txt"))
	assert.FileExists(t, f.template)

	removed, err = f.manager.Cleanup()
	require.NoError(t, err)
	assert.Empty(t, removed, "second cleanup has nothing to do")
}
