package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"auctionHouse/internal/api"
	"auctionHouse/internal/config"
	"auctionHouse/internal/engine"
	"auctionHouse/internal/sigauth"
	"auctionHouse/internal/stats"
	"auctionHouse/internal/storage"
	"auctionHouse/internal/storage/postgres"
	"auctionHouse/internal/token"
	"auctionHouse/internal/vrf"
)

func main() {
	root := &cobra.Command{
		Use:          "auctiond",
		Short:        "Multi-pool auction settlement service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auction engine and HTTP API",
		RunE:  runServe,
	}

	serveCmd.Flags().Uint64("chain-id", 1, "settlement chain id")
	serveCmd.Flags().String("signer", "", "authorization signer address")
	serveCmd.Flags().String("fee-ratio", "", "platform fee ratio at 1e18 scale")
	serveCmd.Flags().String("fee-sink", "", "address receiving extracted fees")
	serveCmd.Flags().String("escrow", "", "escrow account holding pool deposits")
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("out", "./data/events.jsonl", "event journal JSONL path")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for the event store (optional)")
	serveCmd.Flags().Int("sink-retries", 5, "maximum sink retry attempts")
	serveCmd.Flags().Duration("sink-backoff", 500*time.Millisecond, "initial sink retry backoff")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.SignerAddress == "" {
		return fmt.Errorf("signer address is required")
	}
	if cfg.FeeSink == "" || cfg.Escrow == "" {
		return fmt.Errorf("fee-sink and escrow addresses are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.Multi{storage.NewRetrySink(
		storage.NewJsonlSink(cfg.Out), cfg.SinkRetries, cfg.SinkBackoff,
	)}
	collector := stats.NewCollector()
	sinks = append(sinks, collector)

	var reader storage.Reader
	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, storage.NewRetrySink(store, cfg.SinkRetries, cfg.SinkBackoff))
		reader = store
	}

	coord := vrf.NewMock()
	eng := engine.New(
		engine.Config{
			ChainID:  cfg.ChainID,
			FeeRatio: cfg.FeeRatio,
			FeeSink:  common.HexToAddress(cfg.FeeSink),
			Escrow:   common.HexToAddress(cfg.Escrow),
		},
		token.NewMemLedger(),
		sigauth.New(cfg.ChainID, common.HexToAddress(cfg.SignerAddress)),
		coord,
		logger,
		engine.WithSink(sinks),
	)
	coord.Bind(eng)

	server := api.NewServer(eng, collector, reader, logger).WithFulfiller(coord.Fulfill)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("auctiond start",
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("signer", cfg.SignerAddress),
		zap.String("fee_ratio", cfg.FeeRatio.String()),
		zap.String("listen", cfg.ListenAddr),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PgDSN != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
