// Package store implements the durable repository (C13): a single-file
// SQLite database holding image records, watched-folder configuration,
// the reindex activity log, and free-form settings, with an optional
// sqlite-vec mirror table kept purely for diagnostics.
package store

import "time"

// ImageStatus is the lifecycle state of an indexed image row.
type ImageStatus string

const (
	StatusIndexed ImageStatus = "INDEXED"
	StatusError   ImageStatus = "ERROR"
	StatusPending ImageStatus = "PENDING"
)

// Image is a single indexed photo.
type Image struct {
	ID           int64
	FilePath     string
	ThumbPath    string
	Width        int
	Height       int
	FileSize     int64
	FileHash     string
	LastModified time.Time
	IndexedAt    time.Time
	Embedding    []byte
	ExtraJSON    string
	Status       ImageStatus
	IsLoved      bool
	IsBlurred    bool
	Latitude     float64
	Longitude    float64
	HasGPS       bool
}

// WatchedFolder is a directory tree under continuous watch.
type WatchedFolder struct {
	ID         int64
	FolderPath string
	Active     bool
	AddedAt    time.Time
	ImageCount int
}

// ReindexStatus is the outcome of processing a single file during a scan.
type ReindexStatus string

const (
	ReindexSuccess ReindexStatus = "SUCCESS"
	ReindexError   ReindexStatus = "ERROR"
	ReindexSkipped ReindexStatus = "SKIPPED"
)

// ReindexLogEntry records the outcome of processing one file.
type ReindexLogEntry struct {
	ID           int64
	ImageID      int64
	FilePath     string
	Status       ReindexStatus
	ProcessedAt  time.Time
	ErrorMessage string
	DurationMs   int64
}

// EmbeddingRow is the minimal (id, raw embedding bytes) pair used to
// rebuild the in-memory vector index.
type EmbeddingRow struct {
	ID        int64
	Embedding []byte
}

// ListImagesOptions filters and paginates the browse/search surface.
type ListImagesOptions struct {
	Limit  int
	Offset int
}
