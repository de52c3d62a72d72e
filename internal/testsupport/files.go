package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camsync/internal/config"
)

// WriteLog writes a timecode log to path with one "<prefix>_<timecode>_<frame>"
// line per timecode. Frames count up from zero in the given order.
func WriteLog(t testing.TB, path, prefix string, timecodes ...int64) {
	t.Helper()

	var b strings.Builder
	for i, tc := range timecodes {
		fmt.Fprintf(&b, "%s_%d_%d\n", prefix, tc, i)
	}
	WriteText(t, path, b.String())
}

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AddCamera creates a camera directory under the configured data dir holding
// a timecode log and a placeholder video, and returns the log path.
func AddCamera(t testing.TB, cfg *config.Config, camera string, timecodes ...int64) string {
	t.Helper()
	return AddRecording(t, cfg, camera, 0, timecodes...)
}

// AddRecording writes the seq-th recording (log and placeholder video) of a
// camera. Recording names sort in sequence order.
func AddRecording(t testing.TB, cfg *config.Config, camera string, seq int, timecodes ...int64) string {
	t.Helper()

	dir := filepath.Join(cfg.Paths.DataDir, camera)
	name := fmt.Sprintf("GX%02d0001", seq+1)
	logPath := filepath.Join(dir, name+cfg.Dataset.LogExtension)
	WriteLog(t, logPath, name, timecodes...)
	WriteText(t, filepath.Join(dir, name+cfg.Dataset.VideoExtension), "video")
	return logPath
}
