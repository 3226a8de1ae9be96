// Package fetcherr defines the error classification vocabulary shared by the
// download capabilities, the retry policy, and the state machine. Pipeline
// code wraps failures with a sentinel marker before they leave the stage;
// everything downstream acts on the classification, never on raw error text.
package fetcherr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"fetchd/internal/queue"
)

// Sentinel markers, one per classification. Wrap tags an error with one of
// these so Classify can recover it across package boundaries.
var (
	ErrNetwork         = errors.New("network error")
	ErrHTTP            = errors.New("http error")
	ErrAuth            = errors.New("auth error")
	ErrRateLimit       = errors.New("rate limited")
	ErrExtractor       = errors.New("extractor error")
	ErrExtractorUpdate = errors.New("extractor update required")
	ErrGeoBlock        = errors.New("geo blocked")
	ErrSizeLimit       = errors.New("size limit exceeded")
	ErrFormatNotFound  = errors.New("format not found")
	ErrParser          = errors.New("parser error")
	ErrProtected       = errors.New("protected content")
	ErrUnsupported     = errors.New("unsupported source")
	ErrTimeout         = errors.New("timeout")
	ErrUnknown         = errors.New("unknown failure")
)

var markerTypes = map[error]queue.ErrorType{
	ErrNetwork:         queue.ErrorTypeNetwork,
	ErrHTTP:            queue.ErrorTypeHTTP,
	ErrAuth:            queue.ErrorTypeAuth,
	ErrRateLimit:       queue.ErrorTypeRateLimit,
	ErrExtractor:       queue.ErrorTypeExtractor,
	ErrExtractorUpdate: queue.ErrorTypeExtractorUpdate,
	ErrGeoBlock:        queue.ErrorTypeGeoBlock,
	ErrSizeLimit:       queue.ErrorTypeSizeLimit,
	ErrFormatNotFound:  queue.ErrorTypeFormatNotFound,
	ErrParser:          queue.ErrorTypeParser,
	ErrProtected:       queue.ErrorTypeProtected,
	ErrUnsupported:     queue.ErrorTypeUnsupported,
	ErrTimeout:         queue.ErrorTypeTimeout,
	ErrUnknown:         queue.ErrorTypeUnknown,
}

// Wrap tags an error with a classification marker and stage context. The
// marker should be one of the exported sentinels above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its persisted classification. Wrapped sentinels
// win; otherwise common transport errors are recognized, and anything left
// is UNKNOWN.
func Classify(err error) queue.ErrorType {
	if err == nil {
		return ""
	}
	for marker, errType := range markerTypes {
		if errors.Is(err, marker) {
			return errType
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return queue.ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return queue.ErrorTypeTimeout
		}
		return queue.ErrorTypeNetwork
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "too many requests"):
		return queue.ErrorTypeRateLimit
	case strings.Contains(message, "login"), strings.Contains(message, "cookie"), strings.Contains(message, "sign in"):
		return queue.ErrorTypeAuth
	case strings.Contains(message, "network"), strings.Contains(message, "connection"):
		return queue.ErrorTypeNetwork
	}
	return queue.ErrorTypeUnknown
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "fetch failure"
	}
	return strings.Join(parts, ": ")
}
