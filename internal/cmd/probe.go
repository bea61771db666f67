package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/buildlink/internal/backend"
	backendcli "github.com/dshills/buildlink/internal/backend/cli"
	"github.com/dshills/buildlink/internal/task/cancel"
)

func newProbeCommand(a *app) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show the build tool and whether it supports cancellation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.probe(ctx, project)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", ".", "project directory")
	return cmd
}

func (a *app) probe(ctx context.Context, project string) error {
	project, err := filepath.Abs(project)
	if err != nil {
		return err
	}
	threshold, err := a.cfg.Cancellation.ThresholdVersion()
	if err != nil {
		return err
	}

	provider := backendcli.NewProvider(
		backendcli.WithLogger(a.logger.WithComponent("backend")),
		backendcli.WithVersionTimeout(a.cfg.Cancellation.VersionTimeout()),
		backendcli.WithDefaults(&a.cfg.Backend),
	)
	defer provider.Close(a.cfg.Cancellation.CancelGrace())

	return provider.WithConnection(ctx, project, nil, func(conn backend.Connection) error {
		if t, ok := conn.(interface{ Tool() string }); ok {
			fmt.Fprintf(a.stdout, "tool:          %s\n", t.Tool())
		}

		v, known := conn.Version(ctx)
		if known {
			fmt.Fprintf(a.stdout, "version:       %s\n", v)
		} else {
			fmt.Fprintf(a.stdout, "version:       unknown\n")
		}

		support := "unsupported"
		if cancel.Supports(v, known, threshold) {
			support = "supported"
		}
		fmt.Fprintf(a.stdout, "cancellation:  %s (requires %s)\n", support, threshold)
		return nil
	})
}
