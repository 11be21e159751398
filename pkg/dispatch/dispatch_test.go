package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnctl/finnctl/pkg/dispatch"
	"github.com/finnctl/finnctl/pkg/mocks"
	"github.com/finnctl/finnctl/pkg/process"
	"github.com/finnctl/finnctl/pkg/project"
	"github.com/finnctl/finnctl/pkg/state"
	"github.com/finnctl/finnctl/pkg/types"
)

type recordingNotifier struct {
	records []types.RunRecord
}

func (n *recordingNotifier) NotifyRunFinished(record types.RunRecord) {
	n.records = append(n.records, record)
}

type fixture struct {
	workdir  string
	runner   *mocks.MockRunner
	projects *project.Manager
	runs     *state.RunStore
	notifier *recordingNotifier
	dispatch *dispatch.Dispatcher
}

func newFixture(t *testing.T, env string) *fixture {
	t.Helper()
	workdir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workdir, types.FinnDir), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(workdir, "mnist"), 0755))

	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)
	projects := project.NewManager(workdir, filepath.Join(workdir, "template.py"), nil)
	runs := state.NewRunStore(workdir)
	notifier := &recordingNotifier{}

	cfg := dispatch.Config{
		Workdir:              workdir,
		JobCommand:           []string{"bash"},
		BuildScript:          filepath.Join(workdir, "run-docker.sh"),
		PythonDriverScript:   filepath.Join(workdir, "run_python_driver.sh"),
		CppDriverScript:      filepath.Join(workdir, "run_cpp_driver.sh"),
		DriverPrefixCommands: []string{"module load gcc", "module load cmake"},
		BaseEnv:              []string{"PATH=/usr/bin", "BUILD_FLOW_RESUME_STEP=stale"},
		Stdout:               &bytes.Buffer{},
		Stderr:               &bytes.Buffer{},
	}
	if env == types.ClusterEnvName {
		cfg.JobCommand = []string{"sbatch", "-p", "normal", "--wait"}
		cfg.SingularityImage = "/images/finn.sif"
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		start = start.Add(time.Second)
		return start
	}

	return &fixture{
		workdir:  workdir,
		runner:   runner,
		projects: projects,
		runs:     runs,
		notifier: notifier,
		dispatch: dispatch.New(cfg, runner, projects, nil,
			dispatch.WithRunStore(runs),
			dispatch.WithNotifier(notifier),
			dispatch.WithClock(clock)),
	}
}

func TestRun_Argv(t *testing.T) {
	f := newFixture(t, "local")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd process.Command) error {
		assert.Equal(t, []string{"bash", filepath.Join(f.workdir, "run-docker.sh"), filepath.Join(f.workdir, "mnist")}, cmd.Argv())
		assert.Equal(t, f.workdir, cmd.Dir)
		return nil
	})

	record, err := f.dispatch.Run(context.Background(), "mnist", "")
	require.NoError(t, err)
	assert.Equal(t, types.RunKindBuild, record.Kind)
	assert.Equal(t, 0, record.ExitCode)
	assert.Equal(t, time.Second, record.Duration())
}

func TestRun_AcceptsPathForms(t *testing.T) {
	for _, name := range []string{"mnist/", "./mnist"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, "local")

			f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd process.Command) error {
				assert.Equal(t, filepath.Join(f.workdir, "mnist"), cmd.Args[len(cmd.Args)-1])
				return nil
			})

			record, err := f.dispatch.Run(context.Background(), name, "")
			require.NoError(t, err)
			assert.Equal(t, "mnist", record.Project)
		})
	}
}

func TestRun_ClusterJobCommand(t *testing.T) {
	f := newFixture(t, types.ClusterEnvName)

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd process.Command) error {
		argv := cmd.Argv()
		assert.Equal(t, []string{"sbatch", "-p", "normal", "--wait"}, argv[:4])
		value, ok := dispatch.LookupEnv(cmd.Env, types.EnvSingularity)
		assert.True(t, ok)
		assert.Equal(t, "/images/finn.sif", value)
		return nil
	})

	_, err := f.dispatch.Run(context.Background(), "mnist", "")
	require.NoError(t, err)
}

func TestRun_ResumeStepOnlyChangesEnvironment(t *testing.T) {
	f := newFixture(t, "local")

	var commands []process.Command
	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd process.Command) error {
		commands = append(commands, cmd)
		return nil
	}).Times(2)

	_, err := f.dispatch.Run(context.Background(), "mnist", "")
	require.NoError(t, err)
	_, err = f.dispatch.Run(context.Background(), "mnist", "step_hls_codegen")
	require.NoError(t, err)

	require.Len(t, commands, 2)
	assert.Equal(t, commands[0].Argv(), commands[1].Argv())

	first, ok := dispatch.LookupEnv(commands[0].Env, types.EnvResumeStep)
	assert.True(t, ok)
	assert.Equal(t, "", first)

	second, _ := dispatch.LookupEnv(commands[1].Env, types.EnvResumeStep)
	assert.Equal(t, "step_hls_codegen", second)

	workdir, _ := dispatch.LookupEnv(commands[1].Env, types.EnvWorkdir)
	assert.Equal(t, f.workdir, workdir)

	_, singularity := dispatch.LookupEnv(commands[0].Env, types.EnvSingularity)
	assert.False(t, singularity, "singularity image is only exported for cluster runs")

	// the inherited stale value must not survive
	count := 0
	for _, kv := range commands[0].Env {
		if strings.HasPrefix(kv, types.EnvResumeStep+"=") {
			count++
		}
	}
	assert.Equal(t, 1, count)

	_, present := os.LookupEnv(types.EnvResumeStep)
	assert.False(t, present, "the orchestrator's own environment must stay untouched")
}

func TestRun_FailureIsForwarded(t *testing.T) {
	f := newFixture(t, "local")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&process.ExitError{Command: "bash", Code: 3})

	record, err := f.dispatch.Run(context.Background(), "mnist", "")
	require.Error(t, err)
	assert.Equal(t, 3, process.ExitCode(err))
	assert.Equal(t, 3, record.ExitCode)

	last, err := f.runs.Last("mnist")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 3, last.ExitCode)

	require.Len(t, f.notifier.records, 1)
	assert.Equal(t, 3, f.notifier.records[0].ExitCode)
}

func TestRun_WritesProjectLog(t *testing.T) {
	f := newFixture(t, "local")

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd process.Command) error {
		_, err := cmd.Stdout.Write([]byte("step_qonnx_to_finn\n"))
		return err
	})

	_, err := f.dispatch.Run(context.Background(), "mnist", "")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.workdir, types.DataDir, "logs", "mnist.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "step_qonnx_to_finn")
	assert.Contains(t, string(data), "build finished")
}

func TestRun_Preconditions(t *testing.T) {
	t.Run("missing finn checkout", func(t *testing.T) {
		f := newFixture(t, "local")
		require.NoError(t, os.RemoveAll(filepath.Join(f.workdir, types.FinnDir)))

		_, err := f.dispatch.Run(context.Background(), "mnist", "")
		assert.ErrorIs(t, err, types.ErrFinnMissing)
	})

	t.Run("missing project", func(t *testing.T) {
		f := newFixture(t, "local")

		_, err := f.dispatch.Run(context.Background(), "resnet", "")
		assert.ErrorIs(t, err, types.ErrProjectNotFound)
	})

	t.Run("busy project", func(t *testing.T) {
		f := newFixture(t, "local")
		unlock, err := f.projects.Locks().TryLock("mnist")
		require.NoError(t, err)
		defer unlock()

		_, err = f.dispatch.Run(context.Background(), "mnist", "")
		assert.ErrorIs(t, err, types.ErrProjectBusy)
	})
}

func TestLocateOutputDir(t *testing.T) {
	f := newFixture(t, "local")
	projectDir := filepath.Join(f.workdir, "mnist")

	_, err := f.dispatch.LocateOutputDir("mnist")
	assert.ErrorIs(t, err, types.ErrNoOutputDir)

	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "out_file"), nil, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "out_b"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "out_a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "output"), 0755))

	dir, err := f.dispatch.LocateOutputDir("mnist")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "out_a"), dir)
}

func TestRunDriver_Python(t *testing.T) {
	f := newFixture(t, "local")
	require.NoError(t, os.MkdirAll(filepath.Join(f.workdir, "mnist", "out_mnist", "deploy", "driver"), 0755))

	f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd process.Command) error {
		assert.Equal(t, []string{
			"bash",
			filepath.Join(f.workdir, "run_python_driver.sh"),
			filepath.Join(f.workdir, "mnist", "out_mnist", "deploy", "driver"),
		}, cmd.Argv())
		_, ok := dispatch.LookupEnv(cmd.Env, types.EnvResumeStep)
		assert.False(t, ok)
		return nil
	})

	record, err := f.dispatch.RunDriver(context.Background(), types.RunKindPythonDriver, "mnist", dispatch.DriverOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.RunKindPythonDriver, record.Kind)
}

func TestRunDriver_Cpp(t *testing.T) {
	f := newFixture(t, "local")
	require.NoError(t, os.MkdirAll(filepath.Join(f.workdir, "mnist", "out_mnist", "deploy", "driver"), 0755))

	tests := []struct {
		mode string
		want string
	}{
		{"", types.DefaultCppMode},
		{"file", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f.runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd process.Command) error {
				argv := cmd.Argv()
				assert.Equal(t, []string{types.CppDriverModeArg, tt.want}, argv[len(argv)-2:])
				prefixes, ok := dispatch.LookupEnv(cmd.Env, types.EnvDriverPrefixes)
				assert.True(t, ok)
				assert.Equal(t, "module load gcc; module load cmake", prefixes)
				return nil
			})

			_, err := f.dispatch.RunDriver(context.Background(), types.RunKindCppDriver, "mnist", dispatch.DriverOptions{Mode: tt.mode})
			require.NoError(t, err)
		})
	}
}

func TestRunDriver_NoOutputDir(t *testing.T) {
	f := newFixture(t, "local")

	_, err := f.dispatch.RunDriver(context.Background(), types.RunKindPythonDriver, "mnist", dispatch.DriverOptions{})
	assert.True(t, errors.Is(err, types.ErrNoOutputDir))
}

func TestMergeEnv(t *testing.T) {
	base := []string{"A=1", "B=2", "C=3"}
	env := dispatch.MergeEnv(base, types.EnvVar{Name: "B", Value: "x"}, types.EnvVar{Name: "D", Value: "4"})

	assert.Equal(t, []string{"A=1", "C=3", "B=x", "D=4"}, env)
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, base)
}

func TestUnsetEnv(t *testing.T) {
	base := []string{"A=1", "BUILD_FLOW_RESUME_STEP=step_x", "C=3"}
	env := dispatch.UnsetEnv(base, types.EnvResumeStep)

	assert.Equal(t, []string{"A=1", "C=3"}, env)
	assert.Len(t, base, 3)
}
