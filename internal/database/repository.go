package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codebyanand/streamgate/pkg/models"
)

// ErrAssetNotFound is returned when the requested asset does not exist.
var ErrAssetNotFound = errors.New("asset not found")

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Health checks database connectivity
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// CreateAsset creates a new asset record in pending state
func (r *Repository) CreateAsset(ctx context.Context, asset *models.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}
	if asset.Status == "" {
		asset.Status = models.AssetStatusPending
	}

	query := `
		INSERT INTO assets (id, title, description, original_name, size_bytes, status, source_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		asset.ID, asset.Title, asset.Description, asset.OriginalName,
		asset.SizeBytes, asset.Status, asset.SourceKey,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// GetAsset retrieves an asset by ID
func (r *Repository) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	var asset models.Asset

	query := `
		SELECT id, title, description, original_name, size_bytes, status, source_key,
		       playlist_path, thumbnail_path, preview_path, timeline_pattern,
		       duration_seconds, views, likes, created_at, updated_at
		FROM assets
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&asset.ID, &asset.Title, &asset.Description, &asset.OriginalName,
		&asset.SizeBytes, &asset.Status, &asset.SourceKey,
		&asset.PlaylistPath, &asset.ThumbnailPath, &asset.PreviewPath,
		&asset.TimelinePattern, &asset.DurationSeconds, &asset.Views, &asset.Likes,
		&asset.CreatedAt, &asset.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &asset, nil
}

// ListAssets retrieves assets with pagination, newest first
func (r *Repository) ListAssets(ctx context.Context, limit, offset int) ([]*models.Asset, error) {
	query := `
		SELECT id, title, description, original_name, size_bytes, status, source_key,
		       playlist_path, thumbnail_path, preview_path, timeline_pattern,
		       duration_seconds, views, likes, created_at, updated_at
		FROM assets
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		var asset models.Asset
		err := rows.Scan(
			&asset.ID, &asset.Title, &asset.Description, &asset.OriginalName,
			&asset.SizeBytes, &asset.Status, &asset.SourceKey,
			&asset.PlaylistPath, &asset.ThumbnailPath, &asset.PreviewPath,
			&asset.TimelinePattern, &asset.DurationSeconds, &asset.Views, &asset.Likes,
			&asset.CreatedAt, &asset.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, &asset)
	}

	return assets, nil
}

// MarkProcessed writes the pipeline success outcome. The pipeline callback
// fires once per run, so this is the single completion write for the asset.
func (r *Repository) MarkProcessed(ctx context.Context, id string, result *models.ProcessingResult) error {
	query := `
		UPDATE assets
		SET status = $2, playlist_path = $3, thumbnail_path = $4, preview_path = $5,
		    timeline_pattern = $6, duration_seconds = $7, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		id, models.AssetStatusCompleted,
		result.MasterPlaylist, result.Thumbnail, result.PreviewClip,
		result.TimelinePattern, result.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to mark asset processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}

	return nil
}

// MarkFailed records a terminal pipeline failure without touching the
// output fields.
func (r *Repository) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE assets SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id, models.AssetStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark asset failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}

	return nil
}

// DeleteAsset removes the asset record
func (r *Repository) DeleteAsset(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}

	return nil
}

// IncrementViews bumps the view counter in the database. The increment
// happens in SQL so concurrent requests never lose updates.
func (r *Repository) IncrementViews(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE assets SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

// IncrementLikes bumps the like counter in the database
func (r *Repository) IncrementLikes(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE assets SET likes = likes + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment likes: %w", err)
	}
	return nil
}

// HasPlayableAsset reports whether the asset exists and finished
// processing. It is the entitlement source of truth consulted by the
// access cache on miss.
func (r *Repository) HasPlayableAsset(ctx context.Context, assetID string) (bool, error) {
	var status string
	err := r.db.Pool.QueryRow(ctx, `SELECT status FROM assets WHERE id = $1`, assetID).Scan(&status)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check asset: %w", err)
	}

	return status == models.AssetStatusCompleted, nil
}
