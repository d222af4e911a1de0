package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/octopus-project/ipcm-indexer/internal/checkpoint"
	"github.com/octopus-project/ipcm-indexer/internal/common"
	"github.com/octopus-project/ipcm-indexer/internal/config"
	"github.com/octopus-project/ipcm-indexer/internal/db"
	"github.com/octopus-project/ipcm-indexer/internal/db/migrations"
	"github.com/octopus-project/ipcm-indexer/internal/history"
	"github.com/octopus-project/ipcm-indexer/internal/ingest"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/internal/metrics"
	"github.com/octopus-project/ipcm-indexer/internal/query"
	"github.com/octopus-project/ipcm-indexer/internal/reorg"
	"github.com/octopus-project/ipcm-indexer/internal/source"
	"github.com/octopus-project/ipcm-indexer/pkg/api"
	pkgcfg "github.com/octopus-project/ipcm-indexer/pkg/config"
)

const version = "1.0.0"

var (
	configPath       string
	resyncFromLedger uint64
	resyncForce      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ipcm-indexer",
	Short: "IPCM Indexer - NFT CID mapping chain indexer",
	Long: `ipcm-indexer ingests CID mapping events emitted by the IPCM and NFT
contracts, maintains an append-only per-token version history with bounded
reorg tolerance, and serves latest/history/as-of queries over HTTP.`,
	Version: version,
	RunE:    runIndexer,
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Wipe indexed data and restart ingestion from an earlier ledger",
	Long: `resync deletes all indexed history and resets the ingestion checkpoint
so the next run rebuilds the database from the configured (or given) start
ledger. Required after a reorg beyond the finality window.`,
	RunE: runResync,
}

var schemaCmd = &cobra.Command{
	Use:   "config-schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema := jsonschema.Reflect(&pkgcfg.Config{})
		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config schema: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	resyncCmd.Flags().Uint64Var(&resyncFromLedger, "from-ledger", 0, "override the start ledger for the rebuilt index")
	resyncCmd.Flags().BoolVar(&resyncForce, "force", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runIndexer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(common.ComponentIngestPipeline, cfg.Logging)
	defer log.Close()

	log.Infow("starting ipcm-indexer", "version", version, "rpcURL", cfg.Source.RPCURL)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics, logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
	}

	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.Storage); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	client := source.NewHTTPClient(cfg.Source, logger.NewComponentLoggerFromConfig(common.ComponentEventSource, cfg.Logging))

	hist := history.NewStore(database, logger.NewComponentLoggerFromConfig(common.ComponentHistoryStore, cfg.Logging))
	tokens := history.NewTokenStore(database, logger.NewComponentLoggerFromConfig(common.ComponentHistoryStore, cfg.Logging))
	cp := checkpoint.NewStore(database, logger.NewComponentLoggerFromConfig(common.ComponentCheckpoint, cfg.Logging))
	rec := reorg.NewReconciler(database, logger.NewComponentLoggerFromConfig(common.ComponentReconciler, cfg.Logging), cfg.Ingest.FinalityWindow)

	pipeline := ingest.NewPipeline(
		cfg.Ingest,
		client,
		database,
		hist,
		tokens,
		cp,
		rec,
		logger.NewComponentLoggerFromConfig(common.ComponentIngestPipeline, cfg.Logging),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.API != nil && cfg.API.Enabled {
		engine := query.NewEngine(
			hist,
			tokens,
			cp,
			cfg.Ingest.FinalityWindow,
			cfg.API.QueryTimeout.Duration,
			logger.NewComponentLoggerFromConfig(common.ComponentQueryEngine, cfg.Logging),
		)
		apiServer := api.NewServer(cfg.API, engine, pipeline, logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		g.Go(func() error {
			return apiServer.Start(gctx)
		})
	}

	g.Go(func() error {
		return pipeline.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexer failed: %w", err)
	}

	log.Info("ipcm-indexer stopped successfully")
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !resyncForce {
		fmt.Printf("This deletes all indexed data in %s. Continue? [y/N]: ", cfg.Storage.Path)
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	log := logger.NewComponentLoggerFromConfig(common.ComponentCheckpoint, cfg.Logging)
	defer log.Close()

	if err := migrations.RunMigrations(cfg.Storage); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	ctx := context.Background()
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin resync transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"version_records", "token_events", "ledger_window"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	// A non-zero cursor makes the next run start exactly at from-ledger;
	// a zero cursor falls back to the configured start ledger.
	var cursor uint64
	if resyncFromLedger > 1 {
		cursor = resyncFromLedger - 1
	}
	if err := checkpoint.NewStore(database, log).ResetTx(tx, cursor); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resync: %w", err)
	}

	start := cfg.Ingest.StartLedger
	if resyncFromLedger > 0 {
		start = resyncFromLedger
	}
	fmt.Printf("Resync complete. Ingestion will restart from ledger %d.\n", start)
	log.Infow("resync completed", "startLedger", start)
	return nil
}
