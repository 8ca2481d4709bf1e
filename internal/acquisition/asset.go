package acquisition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"narrator/internal/cookies"
	"narrator/internal/fileutil"
)

const (
	// VideoDir holds the acquired media inside the job working directory.
	VideoDir = "video"
	// SessionDir holds provisioned cookies and browser profiles.
	SessionDir = "session"
	// MetadataFile is the structured metadata record written beside the media.
	MetadataFile = "video_metadata.json"
)

// VideoAsset is an acquired source file with best-effort metadata.
type VideoAsset struct {
	Path        string  `json:"path"`
	Duration    float64 `json:"duration"`
	Container   string  `json:"container"`
	VideoCodec  string  `json:"video_codec"`
	AudioCodec  string  `json:"audio_codec,omitempty"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	HasAudio    bool    `json:"has_audio"`
	SizeBytes   int64   `json:"size_bytes"`
	Title       string  `json:"title"`
	SafeTitle   string  `json:"safe_title"`
	Description string  `json:"description,omitempty"`
	Uploader    string  `json:"uploader,omitempty"`
	UploadDate  string  `json:"upload_date,omitempty"`
	ViewCount   int64   `json:"view_count"`
	LikeCount   int64   `json:"like_count"`
	SourceURL   string  `json:"source_url,omitempty"`
	Extractor   string  `json:"extractor,omitempty"`
}

// DurationValue returns the asset duration as a time.Duration.
func (a VideoAsset) DurationValue() time.Duration {
	return time.Duration(a.Duration * float64(time.Second))
}

// Validate checks the asset is usable by later stages.
func (a VideoAsset) Validate() error {
	if a.Path == "" {
		return fmt.Errorf("asset has no path")
	}
	info, err := os.Stat(a.Path)
	if err != nil {
		return fmt.Errorf("asset file: %w", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return fmt.Errorf("asset file %s is empty or not a regular file", a.Path)
	}
	if a.Duration <= 0 {
		return fmt.Errorf("asset duration %.2fs is not positive", a.Duration)
	}
	return nil
}

// Result is the outcome of one Acquire call. Jar is set whenever cookies
// were obtained, including on failure, so a retried stage can reuse them.
type Result struct {
	Asset            VideoAsset   `json:"asset"`
	Jar              *cookies.Jar `json:"-"`
	ProvisionerCalls int          `json:"provisioner_calls"`
	Downloads        int          `json:"downloads"`
}

type metadataRecord struct {
	Title       string  `json:"title"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Uploader    string  `json:"uploader"`
	ViewCount   int64   `json:"view_count"`
	LikeCount   int64   `json:"like_count"`
	UploadDate  string  `json:"upload_date"`
	WebpageURL  string  `json:"webpage_url,omitempty"`
	Extractor   string  `json:"extractor,omitempty"`
	SafeTitle   string  `json:"safe_title"`
	SizeBytes   int64   `json:"size_bytes"`
	Container   string  `json:"container"`
}

func writeMetadata(workdir string, asset VideoAsset) error {
	record := metadataRecord{
		Title:       asset.Title,
		Duration:    asset.Duration,
		Description: asset.Description,
		Uploader:    asset.Uploader,
		ViewCount:   asset.ViewCount,
		LikeCount:   asset.LikeCount,
		UploadDate:  asset.UploadDate,
		WebpageURL:  asset.SourceURL,
		Extractor:   asset.Extractor,
		SafeTitle:   asset.SafeTitle,
		SizeBytes:   asset.SizeBytes,
		Container:   asset.Container,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(filepath.Join(workdir, MetadataFile), append(data, '\n'), 0o644)
}
