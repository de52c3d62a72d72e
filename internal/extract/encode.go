package extract

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strconv"

	"camsync/internal/timecode"
)

const jpegQuality = 95

// Encode writes img in format ("png" or "jpg").
func Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// ArtifactPath returns
// <outputDir>/<reference>/<camera>_<timecode>_<frame>.<format>.
func ArtifactPath(outputDir string, reference int64, camera string, match timecode.Match, format string) string {
	name := timecode.FormatDescriptor(camera, match.Timecode, match.Frame) + "." + format
	return filepath.Join(outputDir, strconv.FormatInt(reference, 10), name)
}
