// Package cmd implements the buildlink command line.
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/buildlink/internal/config"
	"github.com/dshills/buildlink/internal/logging"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "buildlink/skip-config"

// Exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

// ExitError carries a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the exit code for an error returned by the root command.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

// app holds state shared by the subcommands.
type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	v      *viper.Viper
	cfg    *config.Config
	logger *logging.Logger
}

// NewRootCommand builds the buildlink command tree writing to stdout and
// stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, logger: logging.Nop()}

	root := &cobra.Command{
		Use:   "buildlink",
		Short: "Run and cancel Gradle tasks",
		Long: `buildlink runs Gradle tasks through a coordinator that negotiates
cooperative cancellation with the build tool, generates init scripts from
built-in and Lua contributors, and lets hooks take over executions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.load(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/buildlink/config.toml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")

	root.AddCommand(
		newRunCommand(a),
		newProbeCommand(a),
		newConfigCommand(a),
	)
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("logging.level", flags.Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("logging.format", flags.Lookup("log-format")); err != nil {
		return err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a.v = v
	a.cfg = cfg
	a.logger = logging.New(cfg.Logging.LoggerConfig(a.stderr))
	a.logger.Debug("config loaded", "file", v.ConfigFileUsed())
	return nil
}
