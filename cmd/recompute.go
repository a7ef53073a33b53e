package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/panelscore/internal/app"
	"github.com/okian/panelscore/internal/domain/model"
	"github.com/okian/panelscore/pkg/logger"
)

func newRecomputeCmd(o *rootOptions) *cobra.Command {
	var j model.Job
	kinds := model.Kinds()
	valid := make([]string, len(kinds))
	for i, k := range kinds {
		valid[i] = string(k)
	}

	cmd := &cobra.Command{
		Use:       "recompute <kind>",
		Short:     "Run one recompute job synchronously against the configured store",
		Args:      cobra.ExactArgs(1),
		ValidArgs: valid,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseKind(args[0])
			if err != nil {
				return err
			}
			job := model.NewJob(kind)
			job.SubjectID, job.ExpertID, job.CandidateID = j.SubjectID, j.ExpertID, j.CandidateID
			job.SubjectIDs, job.ExpertIDs, job.CandidateIDs = j.SubjectIDs, j.ExpertIDs, j.CandidateIDs
			if err := job.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, log, err := o.setup(ctx)
			if err != nil {
				return err
			}

			svc := service.New(cfg, service.WithLogger(log.Named("service")))
			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				_ = svc.Stop(stopCtx)
			}()

			start := time.Now()
			if err := svc.RunNow(ctx, job); err != nil {
				return fmt.Errorf("recompute %s: %w", kind, err)
			}
			log.Info(ctx, "recompute finished",
				logger.String("job_id", job.ID), logger.String("kind", string(kind)), logger.Duration("took", time.Since(start)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s done\n", job.ID, kind)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&j.SubjectID, "subject", "", "subject id")
	f.StringVar(&j.ExpertID, "expert", "", "expert id")
	f.StringVar(&j.CandidateID, "candidate", "", "candidate id")
	f.StringSliceVar(&j.SubjectIDs, "subjects", nil, "subject ids")
	f.StringSliceVar(&j.ExpertIDs, "experts", nil, "expert ids")
	f.StringSliceVar(&j.CandidateIDs, "candidates", nil, "candidate ids")
	return cmd
}
