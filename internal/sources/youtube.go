package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"

	"fetchd/internal/fetcherr"
)

// YouTubeCapability fetches metadata and streams media through the youtube
// client library.
type YouTubeCapability struct {
	client ytdl.Client
}

// NewYouTubeCapability constructs the YouTube capability.
func NewYouTubeCapability() *YouTubeCapability {
	return &YouTubeCapability{client: ytdl.Client{}}
}

// FetchMetadata resolves the video and partitions its formats into video and
// audio candidates, each sorted best-first by bitrate.
func (c *YouTubeCapability) FetchMetadata(ctx context.Context, url string, fctx FetchContext) (*MetadataResult, error) {
	video, err := c.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, classifyYouTubeError("fetch_metadata", err)
	}
	return metadataFromVideo(video), nil
}

// Download streams the selected format to the target path. The stream lands
// in a .partial file first so a failed transfer never leaves a partial
// artifact visible to output validation.
func (c *YouTubeCapability) Download(ctx context.Context, url string, opts DownloadOptions, fctx FetchContext) (*DownloadResult, error) {
	video, err := c.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, classifyYouTubeError("download", err)
	}

	meta := metadataFromVideo(video)
	selected, ok := SelectFormat(meta, opts.JobType, opts.RequestedQuality, opts.MaxBytes)
	if !ok {
		return nil, fetcherr.Wrap(fetcherr.ErrFormatNotFound, "download", "select_format",
			fmt.Sprintf("no %s format satisfies quality %q", opts.JobType, opts.RequestedQuality), nil)
	}

	itag, _ := strconv.Atoi(selected.ID)
	var target *ytdl.Format
	for i := range video.Formats {
		if video.Formats[i].ItagNo == itag {
			target = &video.Formats[i]
			break
		}
	}
	if target == nil {
		return nil, fetcherr.Wrap(fetcherr.ErrFormatNotFound, "download", "resolve_format",
			"selected itag "+selected.ID+" disappeared from format list", nil)
	}

	stream, size, err := c.client.GetStreamContext(ctx, video, target)
	if err != nil {
		return nil, classifyYouTubeError("download", err)
	}
	defer stream.Close()

	written, err := writeToPartial(ctx, opts.TargetPath, stream, opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	if size > 0 && written != size {
		return nil, fetcherr.Wrap(fetcherr.ErrNetwork, "download", "stream",
			fmt.Sprintf("truncated stream: got %d of %d bytes", written, size), nil)
	}

	return &DownloadResult{
		FilePath:  opts.TargetPath,
		Title:     video.Title,
		SizeBytes: written,
		Metadata: map[string]any{
			"itag":      target.ItagNo,
			"mime_type": target.MimeType,
		},
	}, nil
}

func metadataFromVideo(video *ytdl.Video) *MetadataResult {
	result := &MetadataResult{
		Title:           video.Title,
		DurationSeconds: video.Duration.Seconds(),
		Raw:             video,
	}
	for _, f := range video.Formats {
		format := Format{
			ID:           strconv.Itoa(f.ItagNo),
			MimeType:     f.MimeType,
			QualityLabel: f.QualityLabel,
			Bitrate:      f.Bitrate,
			SizeBytes:    f.ContentLength,
		}
		switch {
		case strings.HasPrefix(f.MimeType, "audio/"):
			result.AudioFormats = append(result.AudioFormats, format)
		case strings.HasPrefix(f.MimeType, "video/"):
			result.VideoFormats = append(result.VideoFormats, format)
		}
	}
	sort.Slice(result.VideoFormats, func(i, j int) bool {
		return result.VideoFormats[i].Bitrate > result.VideoFormats[j].Bitrate
	})
	sort.Slice(result.AudioFormats, func(i, j int) bool {
		return result.AudioFormats[i].Bitrate > result.AudioFormats[j].Bitrate
	})
	return result
}

func classifyYouTubeError(operation string, err error) error {
	if err == nil {
		return nil
	}
	message := strings.ToLower(err.Error())
	marker := fetcherr.ErrExtractor
	switch {
	case strings.Contains(message, "login"), strings.Contains(message, "sign in"):
		marker = fetcherr.ErrAuth
	case strings.Contains(message, "private"), strings.Contains(message, "age"):
		marker = fetcherr.ErrProtected
	case strings.Contains(message, "too many requests"), strings.Contains(message, "429"):
		marker = fetcherr.ErrRateLimit
	case strings.Contains(message, "not available in your country"):
		marker = fetcherr.ErrGeoBlock
	case strings.Contains(message, "connection"), strings.Contains(message, "timeout"),
		strings.Contains(message, "network"):
		marker = fetcherr.ErrNetwork
	case strings.Contains(message, "cipher"), strings.Contains(message, "signature"):
		// Player script changes need a library update, not a retry.
		marker = fetcherr.ErrExtractorUpdate
	}
	return fetcherr.Wrap(marker, "youtube", operation, "", err)
}

// writeToPartial copies a stream to path via a .partial sibling and renames
// on success. A MaxBytes overrun aborts the copy and removes the partial.
func writeToPartial(ctx context.Context, path string, stream io.Reader, maxBytes int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fetcherr.Wrap(fetcherr.ErrNetwork, "download", "prepare", "create target directory", err)
	}
	partial := path + ".partial"
	file, err := os.Create(partial)
	if err != nil {
		return 0, fetcherr.Wrap(fetcherr.ErrNetwork, "download", "prepare", "create partial file", err)
	}

	reader := stream
	if maxBytes > 0 {
		reader = io.LimitReader(stream, maxBytes+1)
	}
	written, copyErr := copyWithContext(ctx, file, reader)
	closeErr := file.Close()

	if copyErr != nil {
		_ = os.Remove(partial)
		if ctx.Err() != nil {
			return 0, fetcherr.Wrap(fetcherr.ErrTimeout, "download", "stream", "copy interrupted", ctx.Err())
		}
		return 0, fetcherr.Wrap(fetcherr.ErrNetwork, "download", "stream", "copy failed", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(partial)
		return 0, fetcherr.Wrap(fetcherr.ErrNetwork, "download", "stream", "close partial file", closeErr)
	}
	if maxBytes > 0 && written > maxBytes {
		_ = os.Remove(partial)
		return 0, fetcherr.Wrap(fetcherr.ErrSizeLimit, "download", "stream",
			fmt.Sprintf("transfer exceeded %d byte ceiling", maxBytes), nil)
	}
	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return 0, fetcherr.Wrap(fetcherr.ErrNetwork, "download", "finalize", "rename partial file", err)
	}
	return written, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 256*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

var _ Capability = (*YouTubeCapability)(nil)
