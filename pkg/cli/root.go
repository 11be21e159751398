// Package cli provides the command-line interface for finnctl
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finnctl/finnctl/internal/engine"
	"github.com/finnctl/finnctl/pkg/config"
	fcontext "github.com/finnctl/finnctl/pkg/context"
	"github.com/finnctl/finnctl/pkg/logger"
)

// skipEngine marks commands that run without loading the pipeline configuration
const skipEngine = "finnctl/skip-engine"

// CLI encapsulates the command-line interface without global state
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	console  *logger.ConsoleLogger
	output   io.Writer
	errorOut io.Writer
	deps     engine.Dependencies
	engine   *engine.Engine
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(config *Config) *CLI {
	return NewCLIWithOutput(config, os.Stdout, os.Stderr)
}

// NewCLIWithOutput creates a CLI with custom output writers
func NewCLIWithOutput(config *Config, output, errorOut io.Writer) *CLI {
	if config == nil {
		config = NewConfig()
	}

	c := &CLI{
		config:   config,
		viper:    viper.New(),
		logger:   logger.Nop(),
		console:  logger.NewConsoleLogger(output, errorOut),
		output:   output,
		errorOut: errorOut,
	}
	c.setupCommands()
	return c
}

// SetDependencies overrides the collaborators handed to the engine
func (c *CLI) SetDependencies(deps engine.Dependencies) {
	c.deps = deps
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support. Errors are reported on the
// error output before being returned; map them to an exit status with ExitCode.
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	err := c.rootCmd.ExecuteContext(ctx)
	if err != nil {
		c.reportError(err)
	}
	return err
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "finnctl",
		Short: "Manage FINN compiler projects and build jobs",
		Long: `finnctl sets up the FINN compiler, keeps the environment build scripts in sync
with config.toml, creates one project directory per ONNX model and dispatches
builds and verification drivers to the configured job launcher.

Running finnctl without a command performs the initial setup (finnctl init).`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInit(cmd.Context(), cloneFlags{})
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("finnctl v{{.Version}}\n")
	c.rootCmd.SetOut(c.output)
	c.rootCmd.SetErr(c.errorOut)

	c.rootCmd.AddCommand(
		c.newInitCmd(),
		c.newConfigCmd(),
		c.newGetFinnCmd(),
		c.newSetEnvVarsCmd(),
		c.newCreateCmd(),
		c.newExecuteCmd(),
		c.newResumeCmd(),
		c.newPythonDriverCmd(),
		c.newCppDriverCmd(),
		c.newCleanupCmd(),
		c.newProjectsCmd(),
		c.newEditCmd(),
		c.newStatusCmd(),
		c.newUpdateCmd(),
		c.newWatchCmd(),
		c.newVersionCmd(),
	)
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", c.config.ConfigFile, "pipeline configuration file (default: <workdir>/config.toml)")
	flags.StringVar(&c.config.Workdir, "workdir", c.config.Workdir, "working directory containing finn/ and the projects")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", c.config.Verbosity, "log level (debug, info, warn, error)")
	flags.StringVar(&c.config.LogFile, "log-file", c.config.LogFile, "additionally write logs to this file")
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	// Flags win over FINNCTL_* environment variables
	c.viper.SetEnvPrefix("FINNCTL")
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()
	if err := c.viper.BindPFlags(c.rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	c.config.ConfigFile = c.viper.GetString("config")
	c.config.Workdir = c.viper.GetString("workdir")
	c.config.Verbosity = c.viper.GetString("verbosity")
	c.config.LogFile = c.viper.GetString("log-file")

	if c.errorOut == io.Writer(os.Stderr) {
		c.logger = logger.CreateLogger(c.config.LogFile, c.config.Verbosity)
	} else {
		c.logger = logger.CreateLoggerWithOutput(c.config.Verbosity, c.errorOut)
	}

	ctx := fcontext.WithCommand(cmd.Context(), cmd.Name())
	ctx = fcontext.WithRunID(ctx, "")
	cmd.SetContext(ctx)

	if cmd.Annotations[skipEngine] == "true" {
		return nil
	}

	doc, err := config.Load(c.config.ConfigPath())
	if err != nil {
		return err
	}
	c.engine, err = engine.New(doc, c.config.Workdir, c.logger, c.dependencies(doc))
	if err != nil {
		return err
	}

	if _, err := c.engine.Reconcile(ctx); err != nil {
		return err
	}
	c.engine.WarnSingularity()
	return nil
}

// dependencies returns the engine collaborators: production defaults with test overrides applied
func (c *CLI) dependencies(doc *config.Document) engine.Dependencies {
	overrides := c.deps
	if overrides.Stdout == nil {
		overrides.Stdout = c.output
	}
	if overrides.Stderr == nil {
		overrides.Stderr = c.errorOut
	}
	if doc == nil {
		return overrides
	}
	return engine.NewDependencyFactory(c.logger, doc).CreateWithOverrides(overrides)
}

func (c *CLI) reportError(err error) {
	c.console.Error(err.Error())
	if h := hint(err); h != "" {
		c.console.Error(h)
	}
}

// Helper methods for console output

func (c *CLI) printSuccess(message string) {
	c.console.Success(message)
}

func (c *CLI) printInfo(message string) {
	c.console.Info(message)
}

func (c *CLI) printWarning(message string) {
	c.console.Warn(message)
}

// ExecuteWithVersion runs the CLI on os.Args with the given version
func ExecuteWithVersion(ctx context.Context, version string) error {
	cfg := NewConfig()
	cfg.Version = version
	return NewCLI(cfg).ExecuteContext(ctx, os.Args[1:])
}
