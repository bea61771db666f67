package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/buildlink/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or create the buildlink configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if file := a.v.ConfigFileUsed(); file != "" {
				fmt.Fprintf(a.stdout, "# config file: %s\n", file)
			} else {
				fmt.Fprintln(a.stdout, "# config file: (none, using defaults)")
			}
			return config.Encode(a.stdout, a.cfg)
		},
	}

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a default config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			path := a.configFile()
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created %s\n", path)
			return nil
		},
	}

	path := &cobra.Command{
		Use:         "path",
		Short:       "Show the config file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(a.stdout, a.configFile())
		},
	}

	cmd.AddCommand(show, initCmd, path)
	return cmd
}

// configFile returns the --config path or the default config file.
func (a *app) configFile() string {
	if a.configPath != "" {
		return a.configPath
	}
	return config.ConfigFile()
}
