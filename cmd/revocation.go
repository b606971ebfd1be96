package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/frahmantamala/project-access/internal/revocation"
	revocationPostgres "github.com/frahmantamala/project-access/internal/revocation/postgres"
	"github.com/frahmantamala/project-access/pkg/logger"
	"github.com/spf13/cobra"
)

var revocationCmd = &cobra.Command{
	Use:   "revocation",
	Short: "Maintain the revoked token denylist",
}

var pruneGrace time.Duration

var revocationPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete denylist entries whose tokens have expired",
	Long:  `Delete revoked_tokens rows whose token expiry is in the past. The redis backend expires keys on its own and needs no pruning.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := pruneRevocations(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "prune failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	revocationPruneCmd.Flags().DurationVar(&pruneGrace, "grace", 0, "keep entries that expired less than this long ago")
	revocationCmd.AddCommand(revocationPruneCmd)
}

func pruneRevocations(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	if cfg.Revocation.Backend == internal.RevocationBackendRedis {
		lg.Info("redis revocation backend expires entries itself; nothing to prune")
		return nil
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := revocation.NewRegistry(revocationPostgres.NewRevocationStore(db), lg)
	removed, err := registry.Prune(ctx, time.Now().Add(-pruneGrace))
	if err != nil {
		return err
	}
	lg.Info("revocation denylist pruned", "removed", removed)
	return nil
}
