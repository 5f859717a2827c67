package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/adapter/file"
	"github.com/user/fetch-pipeline/internal/repository"
	"github.com/user/fetch-pipeline/internal/usecase"
	"github.com/user/fetch-pipeline/pkg/config"
	"github.com/user/fetch-pipeline/pkg/logger"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: `Load "key url" lines into the target table of a batch ("-" reads stdin)`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.close()

			src := file.NewTargetFile(args[0])
			loader, err := usecase.NewTargetLoader(src, "", log)
			if err != nil {
				return err
			}
			batchID, err := loader.ResolveBatch(ctx, cfg.BatchID)
			if err != nil {
				return err
			}
			jobs, err := src.Targets(ctx, batchID, repository.TargetsAll)
			if err != nil {
				return err
			}
			if err := b.writer.AddTargets(ctx, batchID, jobs); err != nil {
				return err
			}
			log.Info("targets imported", zap.String("batch_id", batchID), zap.Int("count", len(jobs)))
			return nil
		},
	}
}
