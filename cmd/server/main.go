package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/callscribe/server/internal/api"
	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/config"
	"github.com/callscribe/server/internal/postproc"
	"github.com/callscribe/server/internal/recognition"
	"github.com/callscribe/server/internal/session"
	"github.com/callscribe/server/internal/storage/sqlite"
	"github.com/callscribe/server/internal/websocket"
	"github.com/callscribe/server/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Callscribe server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One database file per day
	today := time.Now().Format("2006-01-02")
	dbFilename := fmt.Sprintf("callscribe-%s.db", today)
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, dbFilename)

	if err := os.MkdirAll(cfg.Storage.SQLiteBasePath, 0755); err != nil {
		log.Error("Failed to create database directory",
			logger.Error(err),
			logger.String("path", cfg.Storage.SQLiteBasePath))
		os.Exit(1)
	}

	transcriptStorage, err := sqlite.NewTranscriptStorage(dbPath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer transcriptStorage.Close()
	log.Info("Using daily database", logger.String("path", dbPath))

	// WebSocket hub
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Load the recognition model in the background so the HTTP API is
	// reachable immediately; session starts are rejected until it is ready.
	recognizer := recognition.NewEngine(recognition.Config{
		ModelPath: cfg.Recognition.ModelPath,
		Threads:   cfg.Recognition.Threads,
	}, log)
	go func() {
		if err := recognizer.Load(ctx); err != nil {
			log.Error("Failed to load recognition model", logger.Error(err))
		}
	}()
	defer recognizer.Close()

	// Audio source factory
	devices := make([]audio.Device, 0, len(cfg.Audio.Devices))
	for _, d := range cfg.Audio.Devices {
		devices = append(devices, audio.Device{
			ID:    d.ID,
			Name:  d.Name,
			Input: d.Input,
		})
	}
	factory := audio.NewFactory(audio.FactoryConfig{
		FFmpegPath:       cfg.Audio.FFmpegPath,
		CaptureFormat:    cfg.Audio.CaptureFormat,
		SampleRate:       cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
		ChunkSeconds:     float64(cfg.Audio.ChunkSeconds),
		FileSliceSeconds: float64(cfg.Audio.FileSliceSeconds),
		Devices:          devices,
	}, log)

	// Session registry
	registry := session.NewRegistry(factory, recognizer, transcriptStorage, wsServer, session.Config{
		Language:            cfg.Recognition.DefaultLanguage,
		OverlapTrimMinChars: cfg.Recognition.OverlapTrimMinChars,
	}, log)

	// Background transcript summarization
	var summarizer *postproc.Summarizer
	if cfg.PostProcessing.Enabled {
		summarizer, err = postproc.NewSummarizer(ctx, transcriptStorage, wsServer, postproc.Config{
			Enabled:         cfg.PostProcessing.Enabled,
			APIKey:          cfg.PostProcessing.GeminiAPIKey,
			Model:           cfg.PostProcessing.Model,
			IntervalSeconds: cfg.PostProcessing.IntervalSeconds,
			BatchSize:       cfg.PostProcessing.BatchSize,
			TimeoutSeconds:  cfg.PostProcessing.TimeoutSeconds,
		}, log)
		if err != nil {
			log.Error("Failed to create summarizer", logger.Error(err))
			os.Exit(1)
		}
		if err := summarizer.Start(); err != nil {
			log.Error("Failed to start summarizer", logger.Error(err))
			os.Exit(1)
		}
	}

	// API router
	handler := api.NewHandler(registry, factory, transcriptStorage, cfg, log, wsServer)
	router := api.NewRouter(handler, cfg, log)

	var servers []*http.Server
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      router.Routes(),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Stop any running session, saving what it produced so far
	if active := registry.Active(); active != nil && !active.State().Terminal() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := registry.Stop(stopCtx, true); err != nil {
			log.Error("Error stopping active session", logger.Error(err))
			registry.Cancel()
		}
		stopCancel()
	}

	if summarizer != nil {
		log.Info("Stopping summarizer...")
		summarizer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down HTTP server", logger.String("addr", s.Addr), logger.Error(err))
		}
	}

	log.Info("Server stopped")
}
