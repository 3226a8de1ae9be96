// Package storagepaths owns filesystem placement for job artifacts. The
// orchestration core never constructs paths itself; it asks the layout for a
// working location and, on success, for the archival destination.
package storagepaths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fetchd/internal/queue"
)

// Layout computes temp and archive locations under the configured roots.
type Layout struct {
	tmpRoot     string
	archiveRoot string
}

// NewLayout constructs a layout over the configured directories.
func NewLayout(tmpRoot, archiveRoot string) *Layout {
	return &Layout{tmpRoot: tmpRoot, archiveRoot: archiveRoot}
}

// TempPathFor returns the working file location for a job's transfer. Each
// job gets its own directory so partial cleanup cannot touch a neighbor.
func (l *Layout) TempPathFor(jobID int64) string {
	return filepath.Join(l.tmpRoot, fmt.Sprintf("%d", jobID), "download")
}

// ArchivePathFor returns the archival destination for a completed job,
// derived from the final title and the source extension.
func (l *Layout) ArchivePathFor(job *queue.Job, title string) string {
	name := SanitizeFilename(title)
	if name == "" {
		name = fmt.Sprintf("job-%d", job.ID)
	}
	ext := filepath.Ext(job.FilePath)
	if ext == "" || ext == ".partial" {
		ext = defaultExtension(job.JobType)
	}
	return filepath.Join(l.archiveRoot, string(job.SourceType), name+ext)
}

// Archive moves a completed artifact into the archive tree, creating parent
// directories and avoiding collisions by suffixing a counter.
func (l *Layout) Archive(job *queue.Job, title string) (string, error) {
	if job.FilePath == "" {
		return "", fmt.Errorf("job %d has no file to archive", job.ID)
	}
	dest := l.ArchivePathFor(job, title)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	dest = uniquePath(dest)
	if err := moveFile(job.FilePath, dest); err != nil {
		return "", fmt.Errorf("move artifact to archive: %w", err)
	}
	// Best-effort cleanup of the per-job temp directory.
	_ = os.RemoveAll(filepath.Dir(l.TempPathFor(job.ID)))
	return dest, nil
}

// CleanupTemp removes a job's working directory after a failed attempt.
func (l *Layout) CleanupTemp(jobID int64) {
	_ = os.RemoveAll(filepath.Dir(l.TempPathFor(jobID)))
}

func uniquePath(dest string) string {
	if _, err := os.Stat(dest); err != nil {
		return dest
	}
	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(dest, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

func defaultExtension(jobType queue.JobType) string {
	if jobType == queue.JobTypeAudio {
		return ".m4a"
	}
	return ".mp4"
}

var invalidFilenameChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFilename strips characters that are unsafe in file names and
// collapses surrounding whitespace.
func SanitizeFilename(name string) string {
	cleaned := strings.TrimSpace(invalidFilenameChars.Replace(name))
	cleaned = strings.Trim(cleaned, ". ")
	if len(cleaned) > 180 {
		cleaned = strings.TrimSpace(cleaned[:180])
	}
	return cleaned
}
