package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"camsync/internal/config"
	"camsync/internal/services"
)

// Camera is one camera directory and the files selected for the sequence.
// LogErr and VideoErr are set when the corresponding file could not be
// selected; other cameras are unaffected.
type Camera struct {
	ID        string
	Dir       string
	LogPath   string
	VideoPath string
	LogErr    error
	VideoErr  error
}

// Options controls discovery.
type Options struct {
	Root           string
	CameraFilter   string
	SequenceIndex  int
	LogExtension   string
	VideoExtension string
}

// OptionsFromConfig maps the [paths] and [dataset] sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:           cfg.Paths.DataDir,
		CameraFilter:   cfg.Dataset.CameraFilter,
		SequenceIndex:  cfg.Dataset.SequenceIndex,
		LogExtension:   cfg.Dataset.LogExtension,
		VideoExtension: cfg.Dataset.VideoExtension,
	}
}

// Discover lists camera directories under opts.Root whose names contain the
// camera filter, sorted by name, and selects the SequenceIndex-th file of
// each extension inside them. A missing root is a configuration error.
func Discover(opts Options) ([]Camera, error) {
	entries, err := os.ReadDir(opts.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "dataset", "discover", "data directory "+opts.Root+" does not exist", err)
		}
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var cameras []Camera
	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), opts.CameraFilter) {
			continue
		}
		dir := filepath.Join(opts.Root, entry.Name())
		cam := Camera{ID: entry.Name(), Dir: dir}
		cam.LogPath, cam.LogErr = selectFile(dir, opts.LogExtension, opts.SequenceIndex)
		cam.VideoPath, cam.VideoErr = selectFile(dir, opts.VideoExtension, opts.SequenceIndex)
		cameras = append(cameras, cam)
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].ID < cameras[j].ID })
	return cameras, nil
}

// selectFile returns the index-th regular file in dir (sorted by name) whose
// extension matches ext, compared case-insensitively.
func selectFile(dir, ext string, index int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read camera directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if index < 0 || index >= len(names) {
		return "", services.Wrap(
			services.ErrNotFound,
			"dataset",
			"select file",
			fmt.Sprintf("%s has %d %s files, sequence %d requested", dir, len(names), ext, index),
			nil,
		)
	}
	return filepath.Join(dir, names[index]), nil
}

// Find returns the camera with the given id.
func Find(cameras []Camera, id string) (Camera, bool) {
	for _, cam := range cameras {
		if cam.ID == id {
			return cam, true
		}
	}
	return Camera{}, false
}

// IDs returns the camera ids in discovery order.
func IDs(cameras []Camera) []string {
	ids := make([]string, len(cameras))
	for i, cam := range cameras {
		ids[i] = cam.ID
	}
	return ids
}
