package syncer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"camsync/internal/fileutil"
	"camsync/internal/services"
)

// checkpointFile is the on-disk form of an interrupted synchronization. It
// records which cameras were queried so a resume against a different camera
// set starts over.
type checkpointFile struct {
	Cameras []string        `json:"cameras"`
	Sets    json.RawMessage `json:"sets"`
}

func writeCheckpoint(path string, cameras []string, m *Manifest) error {
	sets, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(checkpointFile{Cameras: cameras, Sets: sets}, "", "  ")
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

func readCheckpoint(path string, key Key) ([]string, *Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, services.Wrap(services.ErrNotFound, "sync", "read checkpoint", path, err)
		}
		return nil, nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var file checkpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "sync", "decode checkpoint", path, err)
	}
	if len(file.Sets) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "sync", "decode checkpoint", path+": no sets", nil)
	}
	m, err := DecodeManifest(bytes.NewReader(file.Sets), key)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return file.Cameras, m, nil
}
