package sources

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"fetchd/internal/queue"
)

// ErrInvalidURL indicates a missing, malformed, or unsupported-scheme URL.
var ErrInvalidURL = errors.New("invalid url")

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractFirstURL picks the first HTTP(S) URL-like token out of free text.
// Robustness for typical chat messages, not perfect URL parsing.
func ExtractFirstURL(text string) string {
	if text == "" {
		return ""
	}
	return urlPattern.FindString(text)
}

// NormalizeURL lowercases the scheme and host so equivalent URLs produce the
// same dedup key.
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), nil
}

// ValidateURL checks structure and allowed scheme, returning the normalized
// form.
func ValidateURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: url is missing", ErrInvalidURL)
	}
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: url must include a hostname", ErrInvalidURL)
	}
	return normalized, nil
}

// Domain returns the normalized host portion of a URL.
func Domain(raw string) string {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return ""
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// DedupKey builds the normalized fingerprint that prevents duplicate
// concurrent work for the same request.
func DedupKey(source queue.SourceType, normalizedURL string, jobType queue.JobType, quality string) string {
	return fmt.Sprintf("%s:%s:%s:%s", source, normalizedURL, jobType, strings.ToLower(strings.TrimSpace(quality)))
}
