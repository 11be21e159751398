package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/finnctl/finnctl/internal/engine"
	"github.com/finnctl/finnctl/pkg/config"
	"github.com/finnctl/finnctl/pkg/repo"
	"github.com/finnctl/finnctl/pkg/types"
)

type cloneFlags struct {
	source string
	branch string
	commit string
}

func (f cloneFlags) options() repo.CloneOptions {
	return repo.CloneOptions{Source: f.source, Branch: f.branch, Commit: f.commit}
}

func addCloneFlags(cmd *cobra.Command, f *cloneFlags) {
	cmd.Flags().StringVar(&f.source, "source", "", "repository key from finn.repositories (default: finn.default_repository)")
	cmd.Flags().StringVar(&f.branch, "branch", "", "branch to check out (default: finn.default_branch)")
	cmd.Flags().StringVar(&f.commit, "commit", "", "commit to check out after the branch (default: finn.default_commit_hash)")
}

func (c *CLI) newInitCmd() *cobra.Command {
	var flags cloneFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Clone FINN and instantiate the build scripts",
		Long:  `Clone the configured FINN repository into finn/ and instantiate the environment build script from config.toml.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(cmd.Context(), flags)
		},
	}
	addCloneFlags(cmd, &flags)

	return cmd
}

func (c *CLI) newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [name]",
		Short: "Switch to a configuration preset",
		Long: `Replace config.toml with configurations/<name>.toml and regenerate the build scripts.
Without a name, list the available presets.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipEngine: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return c.runListPresets()
			}
			return c.runUsePreset(cmd.Context(), args[0])
		},
	}
}

func (c *CLI) newGetFinnCmd() *cobra.Command {
	var flags cloneFlags

	cmd := &cobra.Command{
		Use:     "getfinn",
		Aliases: []string{"clone", "clonefinn"},
		Short:   "Clone the configured FINN repository",
		Long:    `Clone FINN from the configured repository, branch and optional commit. An existing finn/ is left untouched.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cloned, err := c.engine.Clone(cmd.Context(), flags.options())
			if err != nil {
				return err
			}
			if cloned {
				c.printSuccess("FINN cloned into " + filepath.Join(c.engine.Workdir(), types.FinnDir))
			} else {
				c.printInfo("FINN is already present, nothing to do")
			}
			c.engine.WarnSingularity()
			return nil
		},
	}
	addCloneFlags(cmd, &flags)

	return cmd
}

func (c *CLI) newSetEnvVarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setenvvars",
		Short: "Regenerate the build scripts from config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.engine.SetEnvVars(cmd.Context()); err != nil {
				return err
			}
			c.printSuccess("Build script written to " + c.engine.BuildScriptPath())
			return nil
		},
	}
}

func (c *CLI) newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <model.onnx>",
		Short: "Create a project from an ONNX model",
		Long:  `Create a project directory named after the model file, copy the model into it and add a build.py from the build template.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.engine.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c.printSuccess(fmt.Sprintf("Project %s ready in %s", p.Name, p.Dir))
			return nil
		},
	}
}

func (c *CLI) newExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <project>",
		Short: "Run the FINN build for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := c.engine.Execute(cmd.Context(), args[0])
			return c.reportRun(record, err)
		},
	}
}

func (c *CLI) newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <project> <step>",
		Short: "Resume the FINN build of a project from a step",
		Long:  `Resume a FINN build flow from the given step. The step must have been reached by a previous build of the project.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := c.engine.Resume(cmd.Context(), args[0], args[1])
			return c.reportRun(record, err)
		},
	}
}

func (c *CLI) newPythonDriverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pythondriver <project>",
		Short: "Run the Python driver against a project's build output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := c.engine.PythonDriver(cmd.Context(), args[0])
			return c.reportRun(record, err)
		},
	}
}

func (c *CLI) newCppDriverCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "cppdriver <project>",
		Short: "Run the C++ driver against a project's build output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := c.engine.CppDriver(cmd.Context(), args[0], mode)
			return c.reportRun(record, err)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", types.DefaultCppMode, "driver mode passed to the C++ driver")

	return cmd
}

func (c *CLI) newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete job logs and FINN_TMP",
		Long:  `Delete *.out job logs, FINN_TMP and the dispatch logs in the working directory. Be sure you no longer need them.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := c.engine.Cleanup()
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				c.printInfo("Nothing to clean up")
				return nil
			}
			for _, path := range removed {
				c.printInfo("Removed " + path)
			}
			c.printSuccess(fmt.Sprintf("Removed %d paths", len(removed)))
			return nil
		},
	}
}

func (c *CLI) newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "projects",
		Aliases: []string{"list"},
		Short:   "List all projects in the working directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := c.engine.ListProjects()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.output, "Found %d project folders:\n", len(names))
			for _, name := range names {
				fmt.Fprintf(c.output, "\t%s\n", name)
			}
			return nil
		},
	}
}

func (c *CLI) newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <project> [editor]",
		Short: "Open a project's build.py in an editor",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor := ""
			if len(args) > 1 {
				editor = args[1]
			}
			return c.engine.Edit(cmd.Context(), args[0], editor)
		},
	}
}

func (c *CLI) newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update the workspace repository, keeping local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.engine.Update(cmd.Context()); err != nil {
				return err
			}
			c.printSuccess("Workspace updated")
			return nil
		},
	}
}

func (c *CLI) newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate the build scripts whenever config.toml changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.printInfo("Watching " + c.config.ConfigPath() + " (Ctrl+C to stop)")
			err := c.engine.Watch(cmd.Context(), engine.WatchOptions{
				Debounce: debounce,
				OnReconcile: func(regenerated bool, err error) {
					switch {
					case err != nil:
						c.printWarning("Configuration not applied: " + err.Error())
					case regenerated:
						c.printSuccess("Build script regenerated")
					}
				},
			})
			if err != nil {
				return err
			}
			c.printInfo("Stopped watching")
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "time to wait for writes to settle")

	return cmd
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version number of finnctl",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipEngine: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "finnctl v%s\n", c.config.Version)
		},
	}
}

// Implementation functions

func (c *CLI) runInit(ctx context.Context, flags cloneFlags) error {
	c.printInfo("finnctl setup: cloning FINN and setting up scripts")
	if err := c.engine.Init(ctx, flags.options()); err != nil {
		return err
	}
	c.printSuccess("Setup complete")
	return nil
}

func (c *CLI) runListPresets() error {
	dir := filepath.Join(c.config.Workdir, types.PresetDir)
	names, err := config.ListPresets(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		c.printWarning("No presets found in " + dir)
		return nil
	}
	fmt.Fprintf(c.output, "Available presets in %s:\n", dir)
	for _, name := range names {
		fmt.Fprintf(c.output, "\t%s\n", name)
	}
	return nil
}

func (c *CLI) runUsePreset(ctx context.Context, name string) error {
	e, err := engine.UsePreset(ctx, c.config.Workdir, c.config.ConfigPath(), name, c.logger, c.dependencies(nil))
	if err != nil {
		return err
	}
	c.engine = e
	c.printSuccess(fmt.Sprintf("Using preset %s (environment %s)", name, e.Document().Config.General.UsedEnvironment))
	return nil
}

func (c *CLI) reportRun(record *types.RunRecord, err error) error {
	if record == nil {
		return err
	}
	if err != nil {
		return fmt.Errorf("%s failed for %s: %w", record.Kind, record.Project, err)
	}
	c.printSuccess(fmt.Sprintf("%s finished for %s in %s", record.Kind, record.Project, record.Duration().Round(time.Second)))
	c.logger.Debug("Dispatched: " + strings.Join(record.Args, " "))
	return nil
}
