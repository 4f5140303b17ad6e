// Package media splits source audio into bounded segments with ffmpeg.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/meetscribe/api/internal/config"
	"github.com/meetscribe/api/internal/joberr"
)

// SegmentMimeType is the mime type of every produced segment. Sources are
// re-encoded to MP3 so the remote service always sees one format.
const SegmentMimeType = "audio/mpeg"

// AudioSegmenter defines the interface for splitting a recording into an
// ordered sequence of independently decodable segment files.
type AudioSegmenter interface {
	Segment(ctx context.Context, srcPath, workDir string) ([]string, error)
}

// Segmenter shells out to ffmpeg. Given the same source and segment length
// the output list is deterministic: chunk_000.mp3, chunk_001.mp3, ...
type Segmenter struct {
	ffmpegPath     string
	segmentSeconds int
}

func NewSegmenter(cfg *config.TranscribeConfig) *Segmenter {
	return &Segmenter{
		ffmpegPath:     cfg.FFmpegPath,
		segmentSeconds: cfg.SegmentSeconds,
	}
}

// Segment splits srcPath into workDir. On ffmpeg failure no partial
// artifacts survive. The Segmenter never retries; a source ffmpeg cannot
// parse is unrecoverable.
func (s *Segmenter) Segment(ctx context.Context, srcPath, workDir string) ([]string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, &joberr.SegmentationError{Source: srcPath, Err: err}
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, s.buildArgs(srcPath, workDir)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.RemoveAll(workDir)
		return nil, &joberr.SegmentationError{
			Source: srcPath,
			Stderr: tailOf(stderr.String(), 512),
			Err:    err,
		}
	}

	return collectSegments(workDir)
}

// buildArgs produces the ffmpeg invocation: segment muxer with a fixed
// duration, re-encoded to MP3 at a fixed quality level.
func (s *Segmenter) buildArgs(srcPath, workDir string) []string {
	return []string{
		"-y",
		"-i", srcPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(s.segmentSeconds),
		"-c:a", "libmp3lame",
		"-q:a", "2",
		filepath.Join(workDir, "chunk_%03d.mp3"),
	}
}

// collectSegments lists produced segments in playback order. The zero-padded
// index makes lexicographic order the segment order.
func collectSegments(workDir string) ([]string, error) {
	segments, err := filepath.Glob(filepath.Join(workDir, "chunk_*.mp3"))
	if err != nil {
		return nil, err
	}
	sort.Strings(segments)
	return segments, nil
}

// IsAvailable reports whether the ffmpeg binary can be found.
func (s *Segmenter) IsAvailable() bool {
	_, err := exec.LookPath(s.ffmpegPath)
	return err == nil
}

// RemoveArtifacts deletes a job's segment working directory.
func RemoveArtifacts(workDir string) error {
	if workDir == "" {
		return nil
	}
	return os.RemoveAll(workDir)
}

// WorkDirFor returns the segment working directory for a job, next to the
// stored source file.
func WorkDirFor(srcPath, jobID string) string {
	return filepath.Join(filepath.Dir(srcPath), fmt.Sprintf("chunks_%s", jobID))
}

func tailOf(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
