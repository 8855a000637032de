package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/experience/internal/config"
	"github.com/cartridge/experience/internal/events"
	"github.com/cartridge/experience/internal/httpapi"
	"github.com/cartridge/experience/internal/metrics"
	"github.com/cartridge/experience/internal/service"
	"github.com/cartridge/experience/replay"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "experience-server",
	Short: "Cartridge RL experience replay service",
	Long: `Experience replay service backing reinforcement-learning training.

Actors append transitions over HTTP; trainers sample randomized batches
whose tensors are concatenated into training-ready columns.`,
	RunE: runServer,
}

func init() {
	cfg = config.Load()

	rootCmd.Flags().StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "HTTP listen host")
	rootCmd.Flags().IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP listen port")

	rootCmd.Flags().IntVar(&cfg.Buffer.Capacity, "capacity", cfg.Buffer.Capacity, "Maximum number of resident transitions")
	rootCmd.Flags().StringVar(&cfg.Buffer.Arena, "arena", cfg.Buffer.Arena, "Arena name backing stored tensors")
	rootCmd.Flags().IntVar(&cfg.Buffer.DefaultBatchSize, "default-batch-size", cfg.Buffer.DefaultBatchSize, "Batch size when a sample request omits one")

	rootCmd.Flags().StringVar(&cfg.NATS.URL, "nats-url", cfg.NATS.URL, "NATS URL for buffer events (empty disables)")
	rootCmd.Flags().StringVar(&cfg.NATS.Subject, "nats-subject", cfg.NATS.Subject, "NATS subject for buffer events")

	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("REPLAY")
	viper.AutomaticEnv()
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	arena := replay.NewArena(cfg.Buffer.Arena)
	buf, err := replay.New(cfg.Buffer.Capacity, arena)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return err
		}
		publisher = natsPublisher
	}
	defer publisher.Close()

	collector := metrics.NewCollector(logger)
	svc := service.New(buf, cfg.Buffer.DefaultBatchSize, logger, collector, publisher)

	api := httpapi.NewServer(svc, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	done := make(chan struct{})
	go func() {
		logger.Info().
			Str("addr", cfg.Server.Addr()).
			Int("capacity", cfg.Buffer.Capacity).
			Str("arena", cfg.Buffer.Arena).
			Msg("experience replay server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	<-done
	logger.Info().Msg("experience replay server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
