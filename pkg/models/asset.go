package models

import "time"

// Asset represents a movie in the catalog together with its streaming
// artifacts. The processing outcome fields (playlist, thumbnail, preview,
// timeline pattern, duration) are written exactly once by the pipeline
// completion callback.
type Asset struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	OriginalName    string    `json:"original_name" db:"original_name"`
	SizeBytes       int64     `json:"size_bytes" db:"size_bytes"`
	Status          string    `json:"status" db:"status"`
	SourceKey       string    `json:"source_key" db:"source_key"`
	PlaylistPath    string    `json:"playlist_path" db:"playlist_path"`
	ThumbnailPath   string    `json:"thumbnail_path" db:"thumbnail_path"`
	PreviewPath     string    `json:"preview_path" db:"preview_path"`
	TimelinePattern string    `json:"timeline_pattern" db:"timeline_pattern"`
	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
	Views           int64     `json:"views" db:"views"`
	Likes           int64     `json:"likes" db:"likes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// AssetStatus constants
const (
	AssetStatusPending   = "pending"
	AssetStatusCompleted = "completed"
	AssetStatusFailed    = "failed"
)
