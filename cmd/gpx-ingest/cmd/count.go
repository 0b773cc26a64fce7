package cmd

import (
	"fmt"
	"net/http"

	"github.com/ojparkinson/gpx-ingest/internal/config"
	"github.com/ojparkinson/gpx-ingest/internal/persistance"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print how many rows a track has in QuestDB",
		Long: `Counts the rows stored for --track-name in --table-name. Useful to check a
load landed, or that reloading a file did not duplicate rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.TrackName == "" {
				err := fmt.Errorf("%w: --track-name", config.ErrMissingFlag)
				logger.Error("Invalid configuration", zap.Error(err))
				return err
			}
			if cfg.Sink != config.SinkQuestDB {
				err := fmt.Errorf("count is only supported for %s, not %s", config.SinkQuestDB, cfg.Sink)
				logger.Error("Unsupported sink", zap.Error(err))
				return err
			}

			q := persistance.NewQueryExecutor(cfg.HTTPBaseURL(), &http.Client{Timeout: cfg.RequestTimeout})
			if cfg.HasCredentials() {
				q.SetBasicAuth(cfg.Username, cfg.Password)
			}

			n, err := q.CountTrackRows(cmd.Context(), cfg.TableName, cfg.TrackName)
			if err != nil {
				logger.Error("Count query failed",
					zap.Error(err),
					zap.String("table", cfg.TableName),
					zap.String("action", "Check QuestDB is reachable and the table exists"))
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
