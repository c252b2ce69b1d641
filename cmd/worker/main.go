package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/codebyanand/streamgate/internal/config"
	"github.com/codebyanand/streamgate/internal/database"
	"github.com/codebyanand/streamgate/internal/logging"
	"github.com/codebyanand/streamgate/internal/metrics"
	"github.com/codebyanand/streamgate/internal/pipeline"
	"github.com/codebyanand/streamgate/internal/queue"
	"github.com/codebyanand/streamgate/internal/storage"
	"github.com/codebyanand/streamgate/internal/tracing"
	"github.com/codebyanand/streamgate/pkg/models"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewDefaultLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	log = log.WithWorkerID(hostname())

	_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName+"-worker", cfg.Tracing.JaegerEndpoint)
	if err != nil {
		log.WithError(err).Warn("Tracing disabled")
	} else {
		defer closer.Close()
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	encoder := pipeline.NewFFmpeg(pipeline.FFmpegOptions{
		FFmpegPath:     cfg.Pipeline.FFmpegPath,
		FFprobePath:    cfg.Pipeline.FFprobePath,
		SegmentSeconds: cfg.Pipeline.SegmentSeconds,
		ThumbnailAt:    cfg.Pipeline.ThumbnailAt,
		PreviewStart:   cfg.Pipeline.PreviewStart,
		PreviewLength:  cfg.Pipeline.PreviewLength,
	})
	runner := pipeline.NewRunner(encoder, cfg.Pipeline.MaxConcurrent, log)

	metricsServer := metrics.NewServer(cfg.Metrics.Port)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutting down worker gracefully...")
		cancel()
	}()

	handler := func(job *models.TranscodeJob) error {
		return processJob(ctx, cfg, repo, stor, runner, log, job)
	}

	log.Info("Worker started, waiting for jobs...")
	if err := q.ConsumeJobs(ctx, handler); err != nil {
		log.Fatalf("Failed to consume jobs: %v", err)
	}

	<-ctx.Done()
	if err := metricsServer.Shutdown(context.Background()); err != nil {
		log.WithError(err).Warn("Metrics server shutdown failed")
	}
	log.Info("Worker stopped")
}

// processJob runs the pipeline for one queued asset. Transient errors
// (source download) return an error so the message requeues; a pipeline
// failure is terminal and recorded on the asset instead.
func processJob(ctx context.Context, cfg *config.Config, repo *database.Repository, stor *storage.Storage, runner *pipeline.Runner, log *logging.Logger, job *models.TranscodeJob) error {
	log = log.WithAssetID(job.AssetID)

	asset, err := repo.GetAsset(ctx, job.AssetID)
	if err != nil {
		// Asset deleted between upload and pickup: drop the job
		log.WithError(err).Warn("Skipping job for missing asset")
		return nil
	}
	if asset.Status != models.AssetStatusPending {
		// Duplicate delivery or resubmission of an already-processed asset
		log.Infof("Skipping job, asset status is %s", asset.Status)
		return nil
	}

	inputPath := filepath.Join(os.TempDir(), "streamgate-"+job.AssetID)
	if err := stor.DownloadFile(ctx, job.SourceKey, inputPath); err != nil {
		log.ErrorWithErr("Failed to download source", err)
		return err
	}
	defer os.Remove(inputPath)

	outputDir := filepath.Join(cfg.Pipeline.ProcessedDir, job.AssetID)

	result, err := runner.Process(ctx, job.AssetID, inputPath, outputDir)
	if err != nil {
		if markErr := repo.MarkFailed(ctx, job.AssetID); markErr != nil {
			log.ErrorWithErr("Failed to record pipeline failure", markErr)
		}
		return nil
	}

	if err := stor.ArchiveArtifacts(ctx, job.AssetID, outputDir); err != nil {
		// Local output is the serving copy; archival is best effort
		log.WithError(err).Warn("Failed to archive artifacts")
	}

	if err := repo.MarkProcessed(ctx, job.AssetID, result); err != nil {
		log.ErrorWithErr("Failed to record pipeline result", err)
		return err
	}

	log.Infof("Asset processed in %d renditions, duration %ds", len(pipeline.DefaultLadder()), result.DurationSeconds)
	return nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return name
}
