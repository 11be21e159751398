package types_test

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/finnctl/finnctl/pkg/types"
)

func TestConfig_Environment(t *testing.T) {
	cfg := &types.Config{
		General: types.GeneralConfig{UsedEnvironment: "local"},
		Environments: map[string]types.EnvironmentConfig{
			"local": {JobExecution: "bash"},
		},
	}

	env, err := cfg.Environment()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.JobExecution != "bash" {
		t.Errorf("expected job execution bash, got %s", env.JobExecution)
	}

	cfg.General.UsedEnvironment = "cluster"
	if _, err := cfg.Environment(); !errors.Is(err, types.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestConfig_Repository(t *testing.T) {
	cfg := &types.Config{
		Finn: types.FinnConfig{
			Repositories: map[string]string{
				"finn":      "https://github.com/Xilinx/finn.git",
				"finn-fork": "https://example.org/finn.git",
			},
			DefaultRepository: "finn",
		},
	}

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"", "https://github.com/Xilinx/finn.git", false},
		{"finn-fork", "https://example.org/finn.git", false},
		{"missing", "", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("key=%q", tt.key), func(t *testing.T) {
			got, err := cfg.Repository(tt.key)
			if tt.wantErr {
				if !errors.Is(err, types.ErrUnknownRepository) {
					t.Errorf("expected ErrUnknownRepository, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestConfig_SingularityImage(t *testing.T) {
	cfg := &types.Config{General: types.GeneralConfig{
		UsedEnvironment:  "local",
		SingularityImage: "/images/finn.sif",
	}}
	if got := cfg.SingularityImage(); got != "" {
		t.Errorf("expected no image outside cluster, got %s", got)
	}

	cfg.General.UsedEnvironment = types.ClusterEnvName
	if got := cfg.SingularityImage(); got != "/images/finn.sif" {
		t.Errorf("expected cluster image, got %s", got)
	}
}

func TestEnvironmentConfig_JobCommand(t *testing.T) {
	env := types.EnvironmentConfig{JobExecution: "  sbatch   --partition normal "}
	got := env.JobCommand()
	want := []string{"sbatch", "--partition", "normal"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestEnvVars_Get(t *testing.T) {
	vars := types.EnvVars{
		{Name: "HLS_PATH", Value: "/opt/hls"},
		{Name: "EMPTY", Value: ""},
	}

	if v, ok := vars.Get("HLS_PATH"); !ok || v != "/opt/hls" {
		t.Errorf("expected /opt/hls, got %q (present=%v)", v, ok)
	}
	if v, ok := vars.Get("EMPTY"); !ok || v != "" {
		t.Errorf("expected empty present value, got %q (present=%v)", v, ok)
	}
	if _, ok := vars.Get("MISSING"); ok {
		t.Error("expected MISSING to be absent")
	}
}

func TestFingerprint_RoundTrip(t *testing.T) {
	fp := types.Fingerprint(sha256.Sum256([]byte("[general]\n")))

	parsed, err := types.ParseFingerprint(fp.String() + "\n")
	if err != nil {
		t.Fatalf("failed to parse fingerprint: %v", err)
	}
	if parsed != fp {
		t.Error("parsed fingerprint differs from original")
	}

	if _, err := types.ParseFingerprint("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
	if _, err := types.ParseFingerprint("abcd"); err == nil {
		t.Error("expected error for short input")
	}
}

func TestRunRecord_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := types.RunRecord{StartedAt: start}
	if r.Duration() != 0 {
		t.Error("unfinished run should report zero duration")
	}

	r.FinishedAt = start.Add(3 * time.Hour)
	if r.Duration() != 3*time.Hour {
		t.Errorf("expected 3h, got %s", r.Duration())
	}
}

func TestIsConfigError(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", types.ErrConfigInvalid)
	if !types.IsConfigError(wrapped) {
		t.Error("expected wrapped ErrConfigInvalid to be a config error")
	}
	if !types.IsConfigError(types.ErrTemplateMissing) {
		t.Error("expected ErrTemplateMissing to be a config error")
	}
	if types.IsConfigError(types.ErrProjectNotFound) {
		t.Error("ErrProjectNotFound is a user error, not a config error")
	}
}
