package dispatch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

// MergeEnv returns base with vars set, replacing any existing entries of the same name.
// base is not modified.
func MergeEnv(base []string, vars ...types.EnvVar) []string {
	override := make(map[string]bool, len(vars))
	for _, v := range vars {
		override[v.Name] = true
	}

	env := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if override[name] {
			continue
		}
		env = append(env, kv)
	}
	for _, v := range vars {
		env = append(env, v.Name+"="+v.Value)
	}
	return env
}

// UnsetEnv returns env without any entries for names. env is not modified.
func UnsetEnv(env []string, names ...string) []string {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[name] = true
	}

	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if drop[name] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// LookupEnv returns the value of name in env
func LookupEnv(env []string, name string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, _ := strings.Cut(env[i], "=")
		if k == name {
			return v, true
		}
	}
	return "", false
}

// LocateOutputDir returns the lexicographically first out_ directory inside projectDir
func LocateOutputDir(projectDir string) (string, error) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, types.OutputDirPrefix) {
			continue
		}
		if !utils.DirectoryExists(filepath.Join(projectDir, name)) {
			continue
		}
		candidates = append(candidates, name)
	}

	if len(candidates) == 0 {
		return "", types.ErrNoOutputDir
	}
	sort.Strings(candidates)
	return filepath.Join(projectDir, candidates[0]), nil
}
