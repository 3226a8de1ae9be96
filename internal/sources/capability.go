package sources

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"fetchd/internal/queue"
)

// Format describes one downloadable rendition of a media item.
type Format struct {
	ID           string
	MimeType     string
	QualityLabel string
	Bitrate      int
	SizeBytes    int64
}

// MetadataResult is the outcome of a successful metadata fetch.
type MetadataResult struct {
	Title           string
	DurationSeconds float64
	VideoFormats    []Format
	AudioFormats    []Format
	Raw             any
}

// DownloadResult is the outcome of a successful transfer. Failures are
// returned as classified errors, never as a result with missing fields.
type DownloadResult struct {
	FilePath  string
	Title     string
	SizeBytes int64
	Metadata  map[string]any
}

// FetchContext carries per-attempt request context into a capability. The
// credential file is an opaque reference resolved by the auth registry.
type FetchContext struct {
	CredentialFile string
	RequestID      string
}

// DownloadOptions directs a capability's transfer operation.
type DownloadOptions struct {
	JobType          queue.JobType
	RequestedQuality string
	TargetPath       string
	MaxBytes         int64
}

// Capability is the uniform two-operation contract every source
// implementation satisfies. The orchestration core never branches on source
// type outside the router lookup.
type Capability interface {
	FetchMetadata(ctx context.Context, url string, fctx FetchContext) (*MetadataResult, error)
	Download(ctx context.Context, url string, opts DownloadOptions, fctx FetchContext) (*DownloadResult, error)
}

// SelectFormat picks the best format satisfying the job type, quality
// constraint, and size ceiling, or reports that none qualifies. Candidates
// are assumed sorted best-first by the capability.
func SelectFormat(meta *MetadataResult, jobType queue.JobType, quality string, maxBytes int64) (*Format, bool) {
	if meta == nil {
		return nil, false
	}
	candidates := meta.AudioFormats
	if jobType == queue.JobTypeVideo {
		candidates = meta.VideoFormats
	}

	wantHeight := parseQualityHeight(quality)
	for i := range candidates {
		f := &candidates[i]
		if maxBytes > 0 && f.SizeBytes > 0 && f.SizeBytes > maxBytes {
			continue
		}
		if jobType == queue.JobTypeVideo && wantHeight > 0 {
			height := parseQualityHeight(f.QualityLabel)
			if height == 0 || height > wantHeight {
				continue
			}
		}
		return f, true
	}
	return nil, false
}

var qualityHeightPattern = regexp.MustCompile(`^(\d{3,4})p`)

// parseQualityHeight extracts the vertical resolution from labels like
// "720p" or "1080p60". Zero means no constraint ("best", "", audio labels).
func parseQualityHeight(quality string) int {
	quality = strings.ToLower(strings.TrimSpace(quality))
	if quality == "" || quality == "best" {
		return 0
	}
	match := qualityHeightPattern.FindStringSubmatch(quality)
	if match == nil {
		return 0
	}
	height, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return height
}
