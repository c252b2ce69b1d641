package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/opentracing/opentracing-go"
	"golang.org/x/sync/semaphore"

	"github.com/codebyanand/streamgate/internal/logging"
	"github.com/codebyanand/streamgate/internal/metrics"
	"github.com/codebyanand/streamgate/pkg/models"
)

// Encoder is one transformation backend for the pipeline steps. The
// production implementation shells out to FFmpeg; tests substitute a fake.
type Encoder interface {
	PackageHLS(ctx context.Context, inputPath, outputDir string) (string, error)
	ExtractThumbnail(ctx context.Context, inputPath, outputDir string) (string, error)
	GeneratePreview(ctx context.Context, inputPath, outputDir string) (string, error)
	GenerateTimeline(ctx context.Context, inputPath, outputDir string) (string, error)
	ProbeDuration(ctx context.Context, inputPath string) (int, error)
}

// Callback receives the terminal outcome of an asynchronous run: a result
// on success, an error on the first failed step.
type Callback func(result *models.ProcessingResult, err error)

// Runner supervises pipeline runs. Steps within one run execute strictly
// sequentially and the first failure aborts the run; partial output is
// left on disk for diagnostics. Runs for different assets proceed in
// parallel up to the configured limit. There is no internal retry and no
// mid-run cancellation: once started, a run completes or fails terminally.
type Runner struct {
	enc Encoder
	sem *semaphore.Weighted
	log *logging.Logger
}

// NewRunner creates a pipeline runner with a global concurrency limit
func NewRunner(enc Encoder, maxConcurrent int64, log *logging.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		enc: enc,
		sem: semaphore.NewWeighted(maxConcurrent),
		log: log,
	}
}

// Process runs the full pipeline synchronously for one asset.
func (r *Runner) Process(ctx context.Context, assetID, inputPath, outputDir string) (*models.ProcessingResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipeline.process")
	span.SetTag("asset_id", assetID)
	defer span.Finish()

	log := r.log.WithAssetID(assetID)
	start := time.Now()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	log.LogPipelineEvent(assetID, "hls", "started", nil)
	master, err := r.enc.PackageHLS(ctx, inputPath, outputDir)
	if err != nil {
		return r.fail(span, assetID, "hls", start, err)
	}

	log.LogPipelineEvent(assetID, "thumbnail", "started", nil)
	thumbnail, err := r.enc.ExtractThumbnail(ctx, inputPath, outputDir)
	if err != nil {
		return r.fail(span, assetID, "thumbnail", start, err)
	}

	log.LogPipelineEvent(assetID, "preview", "started", nil)
	preview, err := r.enc.GeneratePreview(ctx, inputPath, outputDir)
	if err != nil {
		return r.fail(span, assetID, "preview", start, err)
	}

	log.LogPipelineEvent(assetID, "timeline", "started", nil)
	timeline, err := r.enc.GenerateTimeline(ctx, inputPath, outputDir)
	if err != nil {
		return r.fail(span, assetID, "timeline", start, err)
	}

	log.LogPipelineEvent(assetID, "probe", "started", nil)
	duration, err := r.enc.ProbeDuration(ctx, inputPath)
	if err != nil {
		return r.fail(span, assetID, "probe", start, err)
	}

	elapsed := time.Since(start)
	metrics.PipelineRunsTotal.WithLabelValues("completed").Inc()
	metrics.PipelineDuration.Observe(elapsed.Seconds())
	log.LogPipelineEvent(assetID, "pipeline", "completed", map[string]interface{}{
		"duration_seconds": duration,
		"elapsed":          elapsed.String(),
	})

	return &models.ProcessingResult{
		MasterPlaylist:  master,
		Thumbnail:       thumbnail,
		PreviewClip:     preview,
		TimelinePattern: timeline,
		DurationSeconds: duration,
	}, nil
}

func (r *Runner) fail(span opentracing.Span, assetID, step string, start time.Time, err error) (*models.ProcessingResult, error) {
	span.SetTag("error", true)
	span.LogKV("step", step, "error", err.Error())

	metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	r.log.WithAssetID(assetID).ErrorWithErr(fmt.Sprintf("Pipeline step %s failed", step), err)

	// Partial output stays on disk for diagnostics; deletion happens only
	// through the explicit asset removal path
	return nil, fmt.Errorf("pipeline step %s: %w", step, err)
}

// ProcessAsync submits a run and returns immediately. The callback fires
// exactly once with the terminal outcome. The caller is responsible for
// not submitting the same asset twice concurrently (gated on asset
// status).
func (r *Runner) ProcessAsync(ctx context.Context, assetID, inputPath, outputDir string, done Callback) {
	go func() {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			done(nil, fmt.Errorf("failed to acquire pipeline slot: %w", err))
			return
		}
		defer r.sem.Release(1)

		metrics.PipelineRunsInProgress.Inc()
		defer metrics.PipelineRunsInProgress.Dec()

		done(r.Process(ctx, assetID, inputPath, outputDir))
	}()
}
