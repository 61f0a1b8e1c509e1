package common

import "time"

// AssetKind discriminates a full product bundle from a single band file.
type AssetKind string

const (
	AssetArchive AssetKind = "archive"
	AssetBand    AssetKind = "band"
)

// SceneRecord is one catalog entry. Created by the catalog search, immutable
// afterwards.
type SceneRecord struct {
	// EntityID is the M2M scene identifier, unique within a run.
	EntityID string `json:"entity_id"`
	// DisplayID is the human-readable product id, used for file naming.
	DisplayID  string    `json:"display_id"`
	Sensor     Sensor    `json:"sensor"`
	Dataset    string    `json:"dataset"`
	Date       time.Time `json:"date"`
	CloudCover float64   `json:"cloud_cover"`
	// FootprintWKT is the scene footprint, when the service provides one.
	FootprintWKT string `json:"footprint,omitempty"`
}

// AssetRef is one downloadable file of a scene, resolved and ready to fetch.
type AssetRef struct {
	SceneID  string    `json:"scene_id"` // back-reference to SceneRecord.EntityID
	EntityID string    `json:"entity_id"`
	URL      string    `json:"url"`
	Kind     AssetKind `json:"kind"`
	// ExpectedSize in bytes, 0 if the service did not report one.
	ExpectedSize int64 `json:"expected_size,omitempty"`
	// TargetPath is the final local path of the asset.
	TargetPath string `json:"target_path"`
}

// DownloadResult is the terminal state of one AssetRef.
type DownloadResult struct {
	Asset        AssetRef       `json:"asset"`
	Status       DownloadStatus `json:"status"`
	BytesWritten int64          `json:"bytes_written"`
	LocalPath    string         `json:"local_path,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// SceneOutcome is the per-scene aggregate returned to the caller.
type SceneOutcome struct {
	SceneID   string        `json:"scene_id"`
	DisplayID string        `json:"display_id"`
	Status    OutcomeStatus `json:"status"`
	// Files are the usable local paths produced for the scene (band files or
	// extracted product directories).
	Files   []string `json:"files,omitempty"`
	Message string   `json:"message,omitempty"`
}
