package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quiverdb/quiver"
	"github.com/quiverdb/quiver/collection"
	"github.com/quiverdb/quiver/embedding"
	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/index/exact"
	"github.com/quiverdb/quiver/index/ivf"
	"github.com/quiverdb/quiver/index/nsw"
	"github.com/quiverdb/quiver/internal/config"
	"github.com/quiverdb/quiver/internal/server"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quiver",
		Short:         "Single-node vector database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func runServe(cfg *config.Config, debug bool) error {
	logger, err := newLogger(debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	embedder := newEmbedder(cfg, logger)

	db, err := quiver.New(cfg.Storage.DataDir, quiver.WithChunkIndexes(buildIndexes(cfg.Index)))
	if err != nil {
		return err
	}

	logger.Info("rebuilding indexes", zap.String("data_dir", cfg.Storage.DataDir))
	if err := db.Open(); err != nil {
		return err
	}

	srv := server.New(db, embedder, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newEmbedder selects the HTTP provider when a URL is configured and the
// deterministic in-process provider otherwise.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Provider {
	if cfg.Embedding.URL == "" {
		logger.Warn("no embedding provider configured, using deterministic mock",
			zap.Int("dimensions", cfg.Embedding.Dimensions))
		return embedding.NewMock(cfg.Embedding.Dimensions)
	}
	return embedding.NewClient(cfg.Embedding.URL, func(o *embedding.ClientOptions) {
		o.APIKey = cfg.Embedding.APIKey
		o.Dimensions = cfg.Embedding.Dimensions
		o.RequestsPerSecond = cfg.Embedding.RequestsPerSecond
	})
}

func buildIndexes(cfg config.IndexConfig) map[collection.IndexType]index.Index {
	return map[collection.IndexType]index.Index{
		collection.IndexTypeCosine: exact.New(),
		collection.IndexTypeIVF: ivf.New(func(o *ivf.Options) {
			if cfg.IVF.Clusters > 0 {
				o.NumClusters = cfg.IVF.Clusters
			}
			if cfg.IVF.NProbe > 0 {
				o.NProbe = cfg.IVF.NProbe
			}
			if cfg.IVF.Seed != 0 {
				o.Seed = cfg.IVF.Seed
			}
		}),
		collection.IndexTypeNSW: nsw.New(func(o *nsw.Options) {
			if cfg.NSW.M > 0 {
				o.M = cfg.NSW.M
			}
			if cfg.NSW.EFConstruction > 0 {
				o.EFConstruction = cfg.NSW.EFConstruction
			}
			if cfg.NSW.EFSearch > 0 {
				o.EFSearch = cfg.NSW.EFSearch
			}
		}),
	}
}
