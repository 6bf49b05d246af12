package model

import "time"

// StoredArtifact describes bytes that passed the ingestion pipeline and now
// live under the storage root. StoredPath is absolute.
type StoredArtifact struct {
	OriginalFilename string `json:"filename"`
	StoredPath       string `json:"stored_path"`
	SizeBytes        int64  `json:"size_bytes"`
	ContentHash      string `json:"sha256"`
	MimeType         string `json:"mime_type"`
}

// FileRecord is a downloadable binary attached to a release.
type FileRecord struct {
	ID            int64      `json:"id"`
	ReleaseID     int64      `json:"release_id"`
	Platform      string     `json:"platform"`
	Arch          string     `json:"arch"`
	Filename      string     `json:"filename"`
	StoredPath    string     `json:"stored_path"`
	SizeBytes     int64      `json:"size_bytes"`
	SHA256        string     `json:"sha256"`
	MimeType      string     `json:"mime_type"`
	DownloadCount int64      `json:"download_count"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// MediaRecord is an image attached to an app listing.
type MediaRecord struct {
	ID         int64     `json:"id"`
	AppID      int64     `json:"app_id"`
	Type       string    `json:"type"`
	StoredPath string    `json:"stored_path"`
	Caption    string    `json:"caption"`
	SortOrder  int       `json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
}

// App is the subset of an application listing the core mutates.
type App struct {
	ID        int64      `json:"id"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
