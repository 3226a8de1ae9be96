package sources

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	neturl "net/url"
	"path"
	"strings"
	"time"

	"fetchd/internal/fetcherr"
)

// GenericCapability serves direct media URLs and sources without a dedicated
// implementation: a HEAD probe for metadata, a plain GET for the transfer.
type GenericCapability struct {
	client *http.Client
}

// NewGenericCapability constructs the generic HTTP capability.
func NewGenericCapability() *GenericCapability {
	return &GenericCapability{
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

// FetchMetadata probes the URL with a HEAD request. Content type decides the
// format partition; content length becomes the size estimate.
func (c *GenericCapability) FetchMetadata(ctx context.Context, url string, fctx FetchContext) (*MetadataResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.ErrNetwork, "generic", "fetch_metadata", "build request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyHTTPTransportError("fetch_metadata", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus("fetch_metadata", resp.StatusCode); err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	format := Format{
		ID:        "direct",
		MimeType:  mediaType,
		SizeBytes: resp.ContentLength,
	}
	result := &MetadataResult{
		Title: titleFromURL(url),
		Raw:   map[string]any{"content_type": contentType, "content_length": resp.ContentLength},
	}
	switch {
	case strings.HasPrefix(mediaType, "audio/"):
		result.AudioFormats = append(result.AudioFormats, format)
	case strings.HasPrefix(mediaType, "video/"):
		result.VideoFormats = append(result.VideoFormats, format)
	case mediaType == "application/octet-stream", mediaType == "":
		// Some hosts refuse to type direct media; trust the URL extension.
		if isDirectMediaURL(url) {
			result.AudioFormats = append(result.AudioFormats, format)
			result.VideoFormats = append(result.VideoFormats, format)
		}
	}
	if len(result.AudioFormats) == 0 && len(result.VideoFormats) == 0 {
		return nil, fetcherr.Wrap(fetcherr.ErrFormatNotFound, "generic", "fetch_metadata",
			"url does not serve a media content type: "+contentType, nil)
	}
	return result, nil
}

// Download fetches the URL body to the target path through the shared
// partial-then-rename writer.
func (c *GenericCapability) Download(ctx context.Context, url string, opts DownloadOptions, fctx FetchContext) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.ErrNetwork, "generic", "download", "build request", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyHTTPTransportError("download", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus("download", resp.StatusCode); err != nil {
		return nil, err
	}
	if opts.MaxBytes > 0 && resp.ContentLength > 0 && resp.ContentLength > opts.MaxBytes {
		return nil, fetcherr.Wrap(fetcherr.ErrSizeLimit, "generic", "download",
			fmt.Sprintf("content length %d exceeds %d byte ceiling", resp.ContentLength, opts.MaxBytes), nil)
	}

	written, err := writeToPartial(ctx, opts.TargetPath, resp.Body, opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	return &DownloadResult{
		FilePath:  opts.TargetPath,
		Title:     titleFromURL(url),
		SizeBytes: written,
		Metadata: map[string]any{
			"content_type": resp.Header.Get("Content-Type"),
		},
	}, nil
}

func classifyHTTPTransportError(operation string, err error) error {
	marker := fetcherr.ErrNetwork
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		marker = fetcherr.ErrTimeout
	}
	return fetcherr.Wrap(marker, "generic", operation, "", err)
}

func classifyHTTPStatus(operation string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fetcherr.Wrap(fetcherr.ErrRateLimit, "generic", operation, fmt.Sprintf("http %d", status), nil)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fetcherr.Wrap(fetcherr.ErrAuth, "generic", operation, fmt.Sprintf("http %d", status), nil)
	case status == http.StatusNotFound, status == http.StatusGone:
		return fetcherr.Wrap(fetcherr.ErrHTTP, "generic", operation, fmt.Sprintf("http %d", status), nil)
	case status >= 500:
		// Server-side errors behave like transient network failures.
		return fetcherr.Wrap(fetcherr.ErrNetwork, "generic", operation, fmt.Sprintf("http %d", status), nil)
	default:
		return fetcherr.Wrap(fetcherr.ErrHTTP, "generic", operation, fmt.Sprintf("http %d", status), nil)
	}
}

func titleFromURL(raw string) string {
	parsed, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" || base == "" {
		return parsed.Host
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

var _ Capability = (*GenericCapability)(nil)
