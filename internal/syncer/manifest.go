package syncer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"camsync/internal/fileutil"
	"camsync/internal/services"
	"camsync/internal/timecode"
)

// Key identifies a manifest on disk.
type Key struct {
	Reference     string
	Threshold     int64
	StartTimecode int64
}

func (k Key) base() string {
	return fmt.Sprintf("%s_t%d_s%d", k.Reference, k.Threshold, k.StartTimecode)
}

// FileName returns the final manifest file name.
func (k Key) FileName() string {
	return k.base() + ".json"
}

// PartialFileName returns the checkpoint file name.
func (k Key) PartialFileName() string {
	return k.base() + ".partial.json"
}

// Set is the synchronized frame set for one reference timecode. Cameras
// without a match within the threshold are absent from Matches.
type Set struct {
	Reference int64
	Matches   map[string]timecode.Match
}

// Cameras returns the matched camera ids in sorted order.
func (s Set) Cameras() []string {
	cams := make([]string, 0, len(s.Matches))
	for cam := range s.Matches {
		cams = append(cams, cam)
	}
	sort.Strings(cams)
	return cams
}

// Manifest is the ordered list of sets for one reference camera.
type Manifest struct {
	Key  Key
	Sets []Set
}

// Len returns the number of sets.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Sets)
}

// MatchCount returns the total number of camera matches across all sets.
func (m *Manifest) MatchCount() int {
	total := 0
	for _, set := range m.Sets {
		total += len(set.Matches)
	}
	return total
}

// MarshalJSON encodes the sets as one object keyed by reference timecode in
// manifest order. Each value maps camera ids, sorted, to
// "<camera>_<timecode>_<frame>".
func (m *Manifest) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, set := range m.Sets {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.FormatInt(set.Reference, 10)))
		buf.WriteByte(':')

		values := make(map[string]string, len(set.Matches))
		for cam, match := range set.Matches {
			values[cam] = timecode.FormatDescriptor(cam, match.Timecode, match.Frame)
		}
		// encoding/json sorts map keys.
		encoded, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode writes the indented manifest followed by a newline.
func (m *Manifest) Encode(w io.Writer) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}

// DecodeManifest reads a manifest written by Encode, keeping the key order of
// the file. Distances are recomputed from the reference timecodes.
func DecodeManifest(r io.Reader, key Key) (*Manifest, error) {
	fail := func(reason string, err error) error {
		return services.Wrap(services.ErrValidation, "sync", "decode manifest", reason, err)
	}

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fail("read opening brace", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fail("manifest must be a JSON object", nil)
	}

	m := &Manifest{Key: key}
	seen := make(map[int64]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fail("read reference timecode", err)
		}
		rawKey, _ := tok.(string)
		ref, err := strconv.ParseInt(rawKey, 10, 64)
		if err != nil {
			return nil, fail(fmt.Sprintf("invalid reference timecode %q", rawKey), nil)
		}
		if _, dup := seen[ref]; dup {
			return nil, fail(fmt.Sprintf("duplicate reference timecode %d", ref), nil)
		}
		seen[ref] = struct{}{}

		var values map[string]string
		if err := dec.Decode(&values); err != nil {
			return nil, fail(fmt.Sprintf("decode set %d", ref), err)
		}
		set := Set{Reference: ref, Matches: make(map[string]timecode.Match, len(values))}
		for cam, desc := range values {
			rec, err := timecode.ParseDescriptor(desc)
			if err != nil {
				return nil, fail(fmt.Sprintf("set %d camera %s", ref, cam), err)
			}
			if rec.Camera != cam {
				return nil, fail(fmt.Sprintf("set %d: descriptor %q does not belong to camera %s", ref, desc, cam), nil)
			}
			set.Matches[cam] = timecode.Match{
				Timecode: rec.Timecode,
				Frame:    rec.Frame,
				Distance: distance(ref, rec.Timecode),
			}
		}
		m.Sets = append(m.Sets, set)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fail("read closing brace", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fail("unexpected data after manifest object", err)
	}
	return m, nil
}

func distance(a, b int64) int64 {
	var d uint64
	if a >= b {
		d = uint64(a) - uint64(b)
	} else {
		d = uint64(b) - uint64(a)
	}
	if d > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(d)
}

// WriteManifest persists m at path using temp file + rename.
func WriteManifest(path string, m *Manifest) error {
	if err := fileutil.WriteAtomic(path, 0o644, m.Encode); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads the manifest at path. A missing file is reported as
// services.ErrNotFound.
func ReadManifest(path string, key Key) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "sync", "read manifest", path, err)
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()
	m, err := DecodeManifest(file, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ManifestPath returns the final manifest path for key inside dir.
func ManifestPath(dir string, key Key) string {
	return filepath.Join(dir, key.FileName())
}

// PartialPath returns the checkpoint path for key inside dir.
func PartialPath(dir string, key Key) string {
	return filepath.Join(dir, key.PartialFileName())
}
