package models

import "time"

// TranscodeJob is the message published to the queue when an upload needs
// processing. The worker downloads SourceKey from object storage and runs
// the full pipeline for AssetID.
type TranscodeJob struct {
	AssetID      string    `json:"asset_id"`
	SourceKey    string    `json:"source_key"`
	OriginalName string    `json:"original_name"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
