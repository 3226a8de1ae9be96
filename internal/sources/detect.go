package sources

import (
	"net/url"
	"strings"

	"fetchd/internal/fetcherr"
	"fetchd/internal/queue"
)

var youtubeDomains = map[string]struct{}{
	"youtube.com":     {},
	"www.youtube.com": {},
	"m.youtube.com":   {},
	"youtu.be":        {},
}

var facebookDomains = map[string]struct{}{
	"facebook.com":     {},
	"www.facebook.com": {},
	"fb.watch":         {},
}

var archiveDomains = map[string]struct{}{
	"archive.org":     {},
	"www.archive.org": {},
}

var lectureDomains = map[string]struct{}{
	"way2allah.com":     {},
	"www.way2allah.com": {},
	"islamway.net":      {},
	"www.islamway.net":  {},
}

var directMediaExtensions = []string{".mp3", ".mp4", ".m4a", ".webm", ".wav"}

// Detect maps a URL to its source type. Detection is pure and total:
// recognized domains map to a specific source, direct media links fall back
// to GENERIC, and everything else is rejected before any job exists.
func Detect(rawURL string) (queue.SourceType, error) {
	domain := Domain(rawURL)
	if domain == "" {
		return "", fetcherr.Wrap(fetcherr.ErrUnsupported, "detect", "parse", "url has no recognizable host", nil)
	}
	// Strip any port before matching domain sets.
	if idx := strings.LastIndex(domain, ":"); idx > 0 {
		domain = domain[:idx]
	}

	if _, ok := youtubeDomains[domain]; ok {
		return queue.SourceYouTube, nil
	}
	if _, ok := facebookDomains[domain]; ok {
		return queue.SourceFacebook, nil
	}
	if _, ok := archiveDomains[domain]; ok {
		return queue.SourceArchive, nil
	}
	if _, ok := lectureDomains[domain]; ok {
		return queue.SourceLecture, nil
	}
	if isDirectMediaURL(rawURL) {
		return queue.SourceGeneric, nil
	}
	return "", fetcherr.Wrap(fetcherr.ErrUnsupported, "detect", "match", "no capability for domain "+domain, nil)
}

func isDirectMediaURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range directMediaExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
