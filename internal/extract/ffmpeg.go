package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"camsync/internal/services"
)

// FrameExtractor decodes a single frame of a camera's video.
type FrameExtractor interface {
	Extract(ctx context.Context, camera string, frame int64) (image.Image, error)
}

// FFmpeg extracts frames by running ffmpeg with a frame-select filter.
type FFmpeg struct {
	binary  string
	videos  map[string]string
	timeout time.Duration
}

// NewFFmpeg returns an extractor using binary for the cameras in videos
// (camera id to video path). A zero timeout disables the per-frame limit.
func NewFFmpeg(binary string, videos map[string]string, timeout time.Duration) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	copied := make(map[string]string, len(videos))
	for cam, path := range videos {
		copied[cam] = path
	}
	return &FFmpeg{binary: binary, videos: copied, timeout: timeout}
}

// Args returns the ffmpeg arguments that write frame of video to stdout as PNG.
func Args(video string, frame int64) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-vf", `select=eq(n\,` + strconv.FormatInt(frame, 10) + `)`,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	}
}

// Extract implements FrameExtractor.
func (f *FFmpeg) Extract(ctx context.Context, camera string, frame int64) (image.Image, error) {
	video, ok := f.videos[camera]
	if !ok || strings.TrimSpace(video) == "" {
		return nil, services.Wrap(services.ErrNotFound, "extract", "locate video", "no video for camera "+camera, nil)
	}
	if frame < 0 {
		return nil, services.Wrap(services.ErrValidation, "extract", "extract frame", fmt.Sprintf("negative frame %d", frame), nil)
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary, Args(video, frame)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extract", "run ffmpeg",
			fmt.Sprintf("frame %d of %s: %s", frame, video, strings.TrimSpace(stderr.String())), err)
	}
	if stdout.Len() == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "extract", "run ffmpeg",
			fmt.Sprintf("frame %d of %s produced no image (past end of video?)", frame, video), nil)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extract", "decode frame", video, err)
	}
	return img, nil
}
