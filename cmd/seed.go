package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/panelscore/internal/app"
	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/internal/export"
	"github.com/okian/panelscore/pkg/logger"
)

func newSeedCmd(o *rootOptions) *cobra.Command {
	opts := service.DefaultSeedOptions()
	var out string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample data through the normal mutation path and wait for scoring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := o.setup(ctx)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.StoreMemory && out == "" {
				log.Warn(ctx, "memory store: seeded data is discarded on exit; pass --export to keep a report")
			}

			st, err := service.OpenStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

			svc := service.New(cfg, service.WithStore(st), service.WithLogger(log.Named("service")))
			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			rep, seedErr := svc.Seed(ctx, opts)

			// Stop drains the queue, so every queued recompute has run when it returns.
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := svc.Stop(stopCtx); err != nil {
				return fmt.Errorf("drain recompute queue: %w", err)
			}
			if seedErr != nil {
				log.Warn(ctx, "seed finished with errors", logger.Error(seedErr))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}

			if out != "" {
				path, err := export.ToFile(ctx, st, out)
				if err != nil {
					return err
				}
				log.Info(ctx, "report written", logger.String("path", path))
			}
			return seedErr
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Subjects, "subjects", opts.Subjects, "number of subjects")
	f.IntVar(&opts.Experts, "experts", opts.Experts, "number of experts")
	f.IntVar(&opts.Candidates, "candidates", opts.Candidates, "number of candidates")
	f.IntVar(&opts.PanelSize, "panel-size", opts.PanelSize, "experts per subject")
	f.IntVar(&opts.ApplicationsEach, "applications", opts.ApplicationsEach, "applications per candidate")
	f.Uint64Var(&opts.Seed, "rand-seed", opts.Seed, "random seed")
	f.StringVarP(&out, "export", "o", "", "write an .xlsx report after scoring")
	return cmd
}
