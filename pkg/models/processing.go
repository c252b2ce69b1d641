package models

// ProcessingResult holds the artifacts produced by a successful pipeline run.
// All paths are relative to the asset's processed output directory.
type ProcessingResult struct {
	MasterPlaylist  string `json:"master_playlist"`
	Thumbnail       string `json:"thumbnail"`
	PreviewClip     string `json:"preview_clip"`
	TimelinePattern string `json:"timeline_pattern"`
	DurationSeconds int    `json:"duration_seconds"`
}
