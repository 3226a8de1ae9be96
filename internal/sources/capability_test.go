package sources_test

import (
	"testing"

	"fetchd/internal/queue"
	"fetchd/internal/sources"
)

func videoMeta() *sources.MetadataResult {
	return &sources.MetadataResult{
		Title: "Sample",
		VideoFormats: []sources.Format{
			{ID: "hi", QualityLabel: "1080p", Bitrate: 4_000_000, SizeBytes: 900 << 20},
			{ID: "mid", QualityLabel: "720p", Bitrate: 2_500_000, SizeBytes: 400 << 20},
			{ID: "low", QualityLabel: "360p", Bitrate: 800_000, SizeBytes: 120 << 20},
		},
		AudioFormats: []sources.Format{
			{ID: "aud-hi", MimeType: "audio/mp4", Bitrate: 160_000, SizeBytes: 60 << 20},
			{ID: "aud-lo", MimeType: "audio/webm", Bitrate: 70_000, SizeBytes: 25 << 20},
		},
	}
}

func TestSelectFormatBestWithinQuality(t *testing.T) {
	format, ok := sources.SelectFormat(videoMeta(), queue.JobTypeVideo, "720p", 0)
	if !ok {
		t.Fatal("expected a format")
	}
	if format.ID != "mid" {
		t.Fatalf("expected 720p rendition, got %s", format.ID)
	}
}

func TestSelectFormatBestTakesFirst(t *testing.T) {
	format, ok := sources.SelectFormat(videoMeta(), queue.JobTypeVideo, "best", 0)
	if !ok {
		t.Fatal("expected a format")
	}
	if format.ID != "hi" {
		t.Fatalf("expected best rendition first, got %s", format.ID)
	}
}

func TestSelectFormatHonorsSizeCeiling(t *testing.T) {
	format, ok := sources.SelectFormat(videoMeta(), queue.JobTypeVideo, "", 500<<20)
	if !ok {
		t.Fatal("expected a format under the ceiling")
	}
	if format.ID != "mid" {
		t.Fatalf("expected the largest format under the ceiling, got %s", format.ID)
	}
}

func TestSelectFormatAudioIgnoresQualityHeight(t *testing.T) {
	format, ok := sources.SelectFormat(videoMeta(), queue.JobTypeAudio, "720p", 0)
	if !ok {
		t.Fatal("expected an audio format")
	}
	if format.ID != "aud-hi" {
		t.Fatalf("expected best audio rendition, got %s", format.ID)
	}
}

func TestSelectFormatNoneQualifies(t *testing.T) {
	meta := &sources.MetadataResult{
		VideoFormats: []sources.Format{
			{ID: "hi", QualityLabel: "2160p", SizeBytes: 5 << 30},
		},
	}
	if _, ok := sources.SelectFormat(meta, queue.JobTypeVideo, "480p", 0); ok {
		t.Fatal("no format at or below 480p exists; selection must fail")
	}
	if _, ok := sources.SelectFormat(nil, queue.JobTypeVideo, "", 0); ok {
		t.Fatal("nil metadata must not select a format")
	}
}
