package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meetscribe/api/internal/config"
	"github.com/meetscribe/api/internal/joberr"
)

func TestBuildArgs(t *testing.T) {
	s := NewSegmenter(&config.TranscribeConfig{FFmpegPath: "ffmpeg", SegmentSeconds: 600})
	args := s.buildArgs("/tmp/in.wav", "/tmp/work")

	joined := strings.Join(args, " ")
	for _, want := range []string{"-i /tmp/in.wav", "-f segment", "-segment_time 600", "-c:a libmp3lame", "-q:a 2"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != filepath.Join("/tmp/work", "chunk_%03d.mp3") {
		t.Errorf("unexpected output pattern: %s", args[len(args)-1])
	}
}

func TestCollectSegments_Order(t *testing.T) {
	dir := t.TempDir()
	// Written out of order on purpose.
	for _, name := range []string{"chunk_002.mp3", "chunk_000.mp3", "chunk_010.mp3", "chunk_001.mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated files are ignored.
	os.WriteFile(filepath.Join(dir, "source.wav"), []byte("x"), 0o644)

	segments, err := collectSegments(dir)
	if err != nil {
		t.Fatalf("collectSegments failed: %v", err)
	}

	want := []string{"chunk_000.mp3", "chunk_001.mp3", "chunk_002.mp3", "chunk_010.mp3"}
	if len(segments) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(segments))
	}
	for i, seg := range segments {
		if filepath.Base(seg) != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], filepath.Base(seg))
		}
	}
}

func TestSegment_MissingBinary(t *testing.T) {
	s := NewSegmenter(&config.TranscribeConfig{FFmpegPath: "no-such-ffmpeg-binary", SegmentSeconds: 600})
	workDir := filepath.Join(t.TempDir(), "work")

	_, err := s.Segment(context.Background(), "/tmp/in.wav", workDir)
	var segErr *joberr.SegmentationError
	if !errors.As(err, &segErr) {
		t.Fatalf("expected SegmentationError, got %v", err)
	}
	if _, statErr := os.Stat(workDir); !os.IsNotExist(statErr) {
		t.Error("work directory should be removed after a failed run")
	}

	if s.IsAvailable() {
		t.Error("IsAvailable should be false for a missing binary")
	}
}

func TestWorkDirFor(t *testing.T) {
	got := WorkDirFor("/data/uploads/job1_audio.wav", "job1")
	want := filepath.Join("/data/uploads", "chunks_job1")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestTailOf(t *testing.T) {
	if got := tailOf("  short  ", 512); got != "short" {
		t.Errorf("expected trimmed string, got %q", got)
	}
	long := strings.Repeat("a", 600) + "end"
	got := tailOf(long, 512)
	if len(got) != 512 || !strings.HasSuffix(got, "end") {
		t.Errorf("expected last 512 bytes ending in 'end', got len=%d", len(got))
	}
}
