package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/whisper-api/internal/config"
	"github.com/ekisa-team/whisper-api/internal/engine"
	"github.com/ekisa-team/whisper-api/internal/env"
	"github.com/ekisa-team/whisper-api/internal/janitor"
	"github.com/ekisa-team/whisper-api/internal/logger"
	grpcserver "github.com/ekisa-team/whisper-api/internal/server/grpc"
	httpserver "github.com/ekisa-team/whisper-api/internal/server/http"
	"github.com/ekisa-team/whisper-api/internal/service"
	"github.com/ekisa-team/whisper-api/internal/telemetry"
	"github.com/ekisa-team/whisper-api/internal/xfs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		flagHTTPPort   = flag.Int("http-port", config.DefaultHTTPPort(), "HTTP port to listen on")
		flagGRPCPort   = flag.Int("grpc-port", config.DefaultGRPCPort(), "gRPC health port to listen on (0 disables)")
		flagConfigPath = flag.String("config", filepath.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath = flag.String("schema", "", "Path to schema file (embedded schema when empty)")
	)
	flag.Parse()

	environment := env.FromEnv()
	level := new(slog.LevelVar)
	slog.SetDefault(logger.New(environment, logger.WithLevel(level)))

	cfg, found, err := config.LoadOrDefault(*flagConfigPath, *flagSchemaPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *flagConfigPath, "error", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(cfg, nil); err != nil {
		slog.Error("Failed to apply environment overrides", "error", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-port":
			cfg.Server.HTTPPort = *flagHTTPPort
		case "grpc-port":
			cfg.Server.GRPCPort = *flagGRPCPort
		}
	})

	level.Set(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.ToFile {
		slog.SetDefault(logger.New(environment,
			logger.WithLevel(level),
			logger.WithLogToFile(true),
			logger.WithLogFile(cfg.Logging.File),
		))
	}
	log := slog.Default()

	if found {
		log.Info("Config loaded successfully", "config", *flagConfigPath)
	} else {
		log.Info("Config file not found, using defaults", "config", *flagConfigPath)
	}

	if err := run(cfg, found, *flagConfigPath, *flagSchemaPath, level, log); err != nil {
		log.Error("Failed to run server", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, watch bool, configPath, schemaPath string, level *slog.LevelVar, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watch {
		watcher, err := config.NewWatcher(configPath, schemaPath, func(next *config.Config, err error) {
			if err != nil {
				return
			}
			if err := config.ApplyEnv(next, nil); err != nil {
				log.Warn("Failed to apply environment overrides", "error", err)
				return
			}
			level.Set(logger.ParseLevel(next.Logging.Level))
			if cfg.RestartRequired(next) {
				log.Warn("Config changes require a restart to take effect", "config", configPath)
			}
		})
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	var health *grpcserver.HealthServer
	var healthLis net.Listener
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort)))
		if err != nil {
			return fmt.Errorf("failed to bind gRPC listener: %w", err)
		}
		health = grpcserver.NewHealthServer(log)
		healthLis = lis
	}

	g, gctx := errgroup.WithContext(ctx)

	if health != nil {
		g.Go(func() error {
			log.Info("gRPC health server listening", "addr", healthLis.Addr().String())
			return health.Serve(healthLis)
		})
	}

	b, err := engine.Init(ctx, cfg, log)
	if err != nil {
		if health != nil {
			health.Stop(time.Second)
		}
		return fmt.Errorf("failed to load Whisper model: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("Failed to close engine", "error", err)
		}
	}()

	tempDir := xfs.ExpandTilde(cfg.Server.TempDir)
	recorder := telemetry.NewRecorder(log)
	stt := service.NewSTT(b, service.Options{
		Logger:   log,
		Recorder: recorder,
		TempDir:  tempDir,
	})

	maintenance, err := janitor.New(janitor.Options{
		Logger:   log,
		Recorder: recorder,
		TempDir:  tempDir,
	})
	if err != nil {
		return err
	}
	maintenance.Start()

	srv := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort)),
		Handler: httpserver.NewRouter(stt, httpserver.RouterOptions{
			Logger:      log,
			CORSOrigins: cfg.Server.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if health != nil {
		health.SetServing(true)
	}

	g.Go(func() error {
		log.Info("Starting Whisper API Server", "addr", srv.Addr, "backend", b.Provider())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown requested, stopping servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if health != nil {
			health.Stop(shutdownTimeout)
		}
		maintenance.Stop(shutdownCtx)

		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	log.Info("Telemetry totals", "telemetry", recorder.Snapshot())
	return err
}
