package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ollamad/internal/cluster"
	"ollamad/internal/config"
	"ollamad/internal/httpapi"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := "127.0.0.1:5000"
	if v := os.Getenv("OLLAMAD_ADDR"); v != "" {
		defaultAddr = v
	}
	defaultConfig := config.DefaultPath
	if v := os.Getenv("OLLAMAD_CONFIG"); v != "" {
		defaultConfig = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. 127.0.0.1:5000")
	configPath := flag.String("config", defaultConfig, "Cluster configuration file (json/yaml/toml)")
	logLevel := flag.String("log-level", os.Getenv("OLLAMAD_LOG_LEVEL"), "Log level: debug|info|warn|error")
	flag.Parse()

	log := newLogger(*logLevel)

	cfg, err := config.LoadOrCreate(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}
	store := config.NewStore(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup := cluster.NewSupervisor(store, log)
	sup.InitialFill()
	disp := cluster.NewDispatcher(sup, log)
	svc := cluster.NewService(sup, disp)

	go sup.RunControlLoop(ctx)
	if err := config.Watch(ctx, *configPath, store, log); err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable, hot reload disabled")
	}

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	srv := &http.Server{Addr: *addr, Handler: httpapi.NewMux(svc)}

	go func() {
		log.Info().Str("addr", *addr).Str("model", cfg.Model).Msg("ollamad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	sup.Stop()
	disp.Close()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
