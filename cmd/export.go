package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/panelscore/internal/app"
	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/internal/export"
	"github.com/okian/panelscore/pkg/logger"
)

func newExportCmd(o *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the score report of the configured store as an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := o.setup(ctx)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.StoreMemory {
				log.Warn(ctx, "memory store starts empty; use seed --export for a sample report")
			}

			st, err := service.OpenStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

			path, err := export.ToFile(ctx, st, out)
			if err != nil {
				return err
			}
			log.Info(ctx, "report written", logger.String("path", path))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "panelscore.xlsx", "output path")
	return cmd
}
