package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelworks/segfilter"
	"github.com/reelworks/segfilter/internal/api"
	"github.com/reelworks/segfilter/internal/config"
	"github.com/reelworks/segfilter/internal/ffmpeg"
	"github.com/reelworks/segfilter/internal/filter"
	"github.com/reelworks/segfilter/internal/jobs"
	"github.com/reelworks/segfilter/internal/logger"
	"github.com/reelworks/segfilter/internal/pipeline"
	"github.com/reelworks/segfilter/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (default: ./config/segfilter.yaml)")
	port := flag.Int("port", 8000, "Port to listen on")
	flag.Parse()

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/segfilter.yaml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Initialize logger with default level for this warning
		logger.Init("info", "text")
		logger.Warn("Could not load config", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnv()

	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.EnsureDirs(); err != nil {
		logger.Error("Failed to create data directories", "error", err)
		os.Exit(1)
	}

	jobStore, err := store.InitStore(cfg.StoreBackend, cfg.DataPath)
	if err != nil {
		logger.Error("Failed to initialize job store", "error", err)
		os.Exit(1)
	}
	defer jobStore.Close()

	table, err := jobs.NewTableWithStore(jobStore)
	if err != nil {
		logger.Error("Failed to load job table", "error", err)
		jobStore.Close()
		os.Exit(1) //nolint:gocritic // store closed explicitly above
	}

	workers := cfg.PoolWidth()

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                         SEGFILTER                         ║")
	fmt.Println("║           Segment-parallel video filter service           ║")
	versionLine := fmt.Sprintf("v%s", segfilter.Version)
	padding := 59 - len(versionLine)
	fmt.Printf("║%*s%s%*s║\n", padding/2, "", versionLine, (padding+1)/2, "")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Config:       %s\n", cfgPath)
	fmt.Printf("  Uploads:      %s\n", cfg.UploadPath)
	fmt.Printf("  Outputs:      %s\n", cfg.OutputPath)
	fmt.Printf("  Work dir:     %s\n", cfg.WorkPath)
	if p, ok := jobStore.(interface{ Path() string }); ok {
		fmt.Printf("  Job store:    %s (%s)\n", p.Path(), config.ValidateStoreBackend(cfg.StoreBackend))
	}
	fmt.Printf("  Segments:     %gs\n", cfg.SegmentDuration)
	fmt.Printf("  Workers:      %d\n", workers)
	fmt.Printf("  Filters:      %d\n", len(filter.Names()))
	fmt.Printf("  FFmpeg:       %s\n", cfg.FFmpegPath)
	fmt.Printf("  FFprobe:      %s\n", cfg.FFprobePath)
	fmt.Println()

	// Initialize components
	prober := ffmpeg.NewProber(cfg.FFprobePath)
	proc := pipeline.New(pipeline.Options{
		Codec:           ffmpeg.NewCodec(cfg.FFmpegPath, prober),
		Audio:           ffmpeg.NewAudioSidecar(cfg.FFmpegPath, prober),
		SegmentDuration: cfg.SegmentDuration,
		Workers:         workers,
		WorkDir:         cfg.WorkPath,
	})

	runner := jobs.NewRunner(table, proc, cfg.OutputPath)
	resumed := runner.ResumeInterrupted()
	runner.Start()

	handler := api.NewHandler(table, runner, prober, cfg)
	router := api.NewRouter(handler)

	fmt.Printf("  Starting server on port %d\n", *port)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	fmt.Println("─────────────────────────────────────────────────────────────")
	fmt.Printf("  Logging started (level: %s)\n", cfg.LogLevel)
	fmt.Println("─────────────────────────────────────────────────────────────")
	stats := table.Stats()
	logger.Info("Segfilter started",
		"version", segfilter.Version,
		"workers", workers,
		"port", *port,
		"jobs", stats.Total,
		"resumed", resumed)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n  Shutting down...")
		logger.Info("Shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
		}
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		runner.Stop()
		os.Exit(1)
	}

	// An interrupted run stays in processing and resumes on the next start
	runner.Stop()

	logger.Info("Server stopped")
	fmt.Println("  Goodbye!")
}
