package domain

// MediaMetadata describes a stored blob
// Stored as JSONB in messages.media_metadata
type MediaMetadata struct {
	MIME       string `json:"mime"`
	Bytes      int64  `json:"bytes"`
	Width      *int   `json:"width,omitempty"`
	Height     *int   `json:"height,omitempty"`
	DurationMS *int64 `json:"duration_ms,omitempty"`
}

// MediaUpload is the result of placing a blob in object storage
type MediaUpload struct {
	URL          string         `json:"url"`
	ThumbnailURL *string        `json:"thumbnail_url"`
	Metadata     *MediaMetadata `json:"metadata"`
}
