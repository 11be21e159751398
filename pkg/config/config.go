// Package config loads the pipeline configuration document and fingerprints it
package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

const envVarsSection = "build.envvars"

// Document is a loaded configuration together with the exact bytes it came from
type Document struct {
	Path   string
	Raw    []byte
	Config *types.Config
}

// Fingerprint returns the digest of the document bytes
func (d *Document) Fingerprint() types.Fingerprint {
	return Fingerprint(d.Raw)
}

// Fingerprint computes the content digest of raw configuration bytes.
// Formatting changes count as changes; nothing is normalized.
func Fingerprint(raw []byte) types.Fingerprint {
	return types.Fingerprint(sha256.Sum256(raw))
}

// Load reads, parses and validates the configuration at path
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Document{Path: path, Raw: raw, Config: cfg}, nil
}

// Parse decodes and validates configuration bytes
func Parse(raw []byte) (*types.Config, error) {
	var cfg types.Config
	md, err := toml.Decode(string(raw), &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}

	cfg.EnvVars = orderedEnvVars(md, cfg.Build.EnvVars)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// orderedEnvVars recovers document order of build.envvars from decoder metadata
func orderedEnvVars(md toml.MetaData, values map[string]string) types.EnvVars {
	vars := make(types.EnvVars, 0, len(values))
	seen := make(map[string]bool, len(values))

	for _, key := range md.Keys() {
		if len(key) != 3 || key[0] != "build" || key[1] != "envvars" {
			continue
		}
		name := key[2]
		value, ok := values[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		vars = append(vars, types.EnvVar{Name: name, Value: value})
	}

	// Anything the metadata missed keeps a stable order
	var rest []string
	for name := range values {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		vars = append(vars, types.EnvVar{Name: name, Value: values[name]})
	}

	return vars
}

// Validate checks that every value other components rely on is present
func Validate(cfg *types.Config) error {
	var problems []string

	if cfg.General.UsedEnvironment == "" {
		problems = append(problems, "general.used_environment is not set")
	}

	env, ok := cfg.Environments[cfg.General.UsedEnvironment]
	if cfg.General.UsedEnvironment != "" && !ok {
		problems = append(problems, fmt.Sprintf("environment %q is not defined", cfg.General.UsedEnvironment))
	}
	if ok {
		prefix := "environment." + cfg.General.UsedEnvironment
		if len(env.JobCommand()) == 0 {
			problems = append(problems, prefix+".job_execution is empty")
		}
		if env.FinnBuildScript == "" {
			problems = append(problems, prefix+".finn_build_script is empty")
		}
		if env.FinnBuildScriptTemplate == "" {
			problems = append(problems, prefix+".finn_build_script_template is empty")
		}
	}

	if cfg.General.UsedEnvironment == types.ClusterEnvName && cfg.General.SingularityImage == "" {
		problems = append(problems, "general.singularity_image is required for the cluster environment")
	}

	if _, ok := cfg.Finn.Repositories[cfg.Finn.DefaultRepository]; !ok {
		problems = append(problems, fmt.Sprintf("finn.default_repository %q is not listed in finn.repositories", cfg.Finn.DefaultRepository))
	}
	if cfg.Finn.DefaultBranch == "" {
		problems = append(problems, "finn.default_branch is empty")
	}
	if cfg.Finn.BuildTemplate == "" {
		problems = append(problems, "finn.build_template is empty")
	}

	for _, v := range cfg.EnvVars {
		if strings.ContainsAny(v.Name, " \t\n=\"") {
			problems = append(problems, fmt.Sprintf("%s: invalid variable name %q", envVarsSection, v.Name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", types.ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ListPresets returns the names of the configuration presets in dir
func ListPresets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".toml"))
	}
	sort.Strings(names)
	return names, nil
}

// UsePreset replaces dest with the preset called name from dir.
// The preset is parsed first so a broken preset never replaces a working config.
func UsePreset(dir, name, dest string) (*Document, error) {
	names, err := ListPresets(dir)
	if err != nil {
		return nil, err
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: could not find %s", types.ErrUnknownPreset, filepath.Join(dir, name+".toml"))
	}

	src := filepath.Join(dir, name+".toml")
	doc, err := Load(src)
	if err != nil {
		return nil, err
	}

	if err := utils.WriteFileAtomic(dest, doc.Raw, 0644); err != nil {
		return nil, fmt.Errorf("failed to activate preset %s: %w", name, err)
	}

	doc.Path = dest
	return doc, nil
}
