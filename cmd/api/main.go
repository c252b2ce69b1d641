package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codebyanand/streamgate/internal/access"
	"github.com/codebyanand/streamgate/internal/cache"
	"github.com/codebyanand/streamgate/internal/config"
	"github.com/codebyanand/streamgate/internal/database"
	"github.com/codebyanand/streamgate/internal/logging"
	"github.com/codebyanand/streamgate/internal/metrics"
	"github.com/codebyanand/streamgate/internal/middleware"
	"github.com/codebyanand/streamgate/internal/playlist"
	"github.com/codebyanand/streamgate/internal/queue"
	"github.com/codebyanand/streamgate/internal/storage"
	"github.com/codebyanand/streamgate/internal/stream"
	"github.com/codebyanand/streamgate/internal/token"
	"github.com/codebyanand/streamgate/internal/tracing"
	"github.com/codebyanand/streamgate/pkg/models"
)

type API struct {
	repo         *database.Repository
	storage      *storage.Storage
	queue        *queue.Queue
	access       *access.Cache
	stream       *stream.Handlers
	processedDir string
	log          *logging.Logger
}

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

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	_, closer, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
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

	rdb, err := cache.New(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	tokens := token.NewService(cfg.Tokens.Secret, cfg.Tokens.MasterTTL, cfg.Tokens.SegmentTTL, rdb.Client())

	// Entitlement source of truth: the asset exists and finished
	// processing. Upstream identity already gates who reaches the API.
	check := func(ctx context.Context, userID, assetID string) (bool, error) {
		return repo.HasPlayableAsset(ctx, assetID)
	}
	acc := access.NewCache(rdb.Client(), check, cfg.Access.TTL, log)

	rewriter := playlist.NewRewriter(cfg.Pipeline.ProcessedDir, tokens)
	streamHandlers := stream.NewHandlers(tokens, acc, rewriter, cfg.Pipeline.ProcessedDir, log)

	api := &API{
		repo:         repo,
		storage:      stor,
		queue:        q,
		access:       acc,
		stream:       streamHandlers,
		processedDir: cfg.Pipeline.ProcessedDir,
		log:          log,
	}

	metricsServer := metrics.NewServer(cfg.Metrics.Port)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	router := setupRouter(api, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Metrics server shutdown failed")
	}

	log.Info("Server stopped")
}

func setupRouter(api *API, log *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))

	router.GET("/health", api.healthCheck)

	v1 := router.Group("/api/v1")
	{
		// Catalog
		v1.POST("/movies", middleware.Identity(), api.uploadMovie)
		v1.GET("/movies", api.listMovies)
		v1.GET("/movies/:id", api.getMovie)
		v1.DELETE("/movies/:id", middleware.Identity(), api.deleteMovie)

		// Engagement counters
		v1.POST("/movies/:id/view", api.incrementViews)
		v1.POST("/movies/:id/like", api.incrementLikes)

		// Playback
		v1.GET("/movies/:id/player", middleware.Identity(), api.stream.PlayerInit)
		v1.GET("/movies/:id/master.m3u8", api.stream.MasterPlaylist)
		v1.GET("/movies/:id/segments/:file", api.stream.Segment)

		// Untokenized artifacts: variant playlists, thumbnails, previews
		v1.GET("/stream/:id/*filepath", api.stream.StreamFile)
	}

	return router
}

func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.repo.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// uploadMovie accepts the source file, stores it, records the asset in
// pending state, and enqueues the transcode job. The response returns
// immediately; processing happens on the worker fleet.
func (api *API) uploadMovie(c *gin.Context) {
	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	tempPath := filepath.Join(os.TempDir(), uuid.New().String())
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	asset := &models.Asset{
		ID:           uuid.New().String(),
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		OriginalName: file.Filename,
		SizeBytes:    file.Size,
		Status:       models.AssetStatusPending,
	}
	if asset.Title == "" {
		asset.Title = file.Filename
	}
	asset.SourceKey = storage.SourceKey(asset.ID, file.Filename)

	if err := api.storage.UploadFile(c.Request.Context(), asset.SourceKey, tempPath); err != nil {
		api.log.WithAssetID(asset.ID).ErrorWithErr("Failed to upload source", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	if err := api.repo.CreateAsset(c.Request.Context(), asset); err != nil {
		api.log.WithAssetID(asset.ID).ErrorWithErr("Failed to create asset", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create asset"})
		return
	}

	job := &models.TranscodeJob{
		AssetID:      asset.ID,
		SourceKey:    asset.SourceKey,
		OriginalName: file.Filename,
		SubmittedAt:  time.Now(),
	}
	if err := api.queue.PublishJob(c.Request.Context(), job); err != nil {
		api.log.WithAssetID(asset.ID).ErrorWithErr("Failed to queue job", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue processing"})
		return
	}

	metrics.UploadsTotal.Inc()
	metrics.UploadSizeBytes.Observe(float64(file.Size))

	c.JSON(http.StatusCreated, asset)
}

func (api *API) getMovie(c *gin.Context) {
	asset, err := api.repo.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Movie not found"})
		return
	}

	c.JSON(http.StatusOK, asset)
}

func (api *API) listMovies(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	assets, err := api.repo.ListAssets(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"movies": assets,
		"limit":  limit,
		"offset": offset,
	})
}

// deleteMovie removes the record, the local HLS output, the stored
// source and artifacts, and every cached entitlement for the asset.
func (api *API) deleteMovie(c *gin.Context) {
	assetID := c.Param("id")

	asset, err := api.repo.GetAsset(c.Request.Context(), assetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Movie not found"})
		return
	}

	if err := api.repo.DeleteAsset(c.Request.Context(), assetID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete movie"})
		return
	}

	if err := os.RemoveAll(filepath.Join(api.processedDir, assetID)); err != nil {
		api.log.WithAssetID(assetID).WithError(err).Warn("Failed to remove processed output")
	}
	if err := api.storage.DeleteAsset(c.Request.Context(), assetID, asset.SourceKey); err != nil {
		api.log.WithAssetID(assetID).WithError(err).Warn("Failed to remove stored objects")
	}
	if err := api.access.InvalidateAsset(c.Request.Context(), assetID); err != nil {
		api.log.WithAssetID(assetID).WithError(err).Warn("Failed to invalidate access cache")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Movie deleted", "movie_id": assetID})
}

func (api *API) incrementViews(c *gin.Context) {
	if err := api.repo.IncrementViews(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record view"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (api *API) incrementLikes(c *gin.Context) {
	if err := api.repo.IncrementLikes(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record like"})
		return
	}
	c.Status(http.StatusNoContent)
}
