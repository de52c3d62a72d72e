package timecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"camsync/internal/fileutil"
	"camsync/internal/services"
)

const (
	// FileExtension is the suffix of persisted index files.
	FileExtension = ".tci"

	formatVersion uint16 = 1
	recordSize           = 16
	trailerSize          = 4
)

var fileMagic = [4]byte{'C', 'T', 'C', 'I'}

// FileName returns the persisted index file name for camera.
func FileName(camera string) string {
	return camera + FileExtension
}

// Path returns the persisted index path for camera inside dir.
func Path(dir, camera string) string {
	return filepath.Join(dir, FileName(camera))
}

// MarshalBinary encodes the index in the persisted layout: magic, version,
// camera id, record count, ascending (timecode, frame) pairs and a trailing
// CRC-32 of everything before it. All integers are little-endian.
func (ix *Index) MarshalBinary() ([]byte, error) {
	if ix.State() != StateBuilt {
		return nil, services.Wrap(services.ErrValidation, "timecode", "encode index", "index is not built", nil)
	}
	if len(ix.camera) > math.MaxUint16 {
		return nil, services.Wrap(services.ErrValidation, "timecode", "encode index", "camera id too long", nil)
	}

	size := len(fileMagic) + 2 + 2 + len(ix.camera) + 8 + len(ix.nodes)*recordSize + trailerSize
	buf := make([]byte, 0, size)
	buf = append(buf, fileMagic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, formatVersion)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.camera)))
	buf = append(buf, ix.camera...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(ix.nodes)))
	for _, n := range ix.nodes {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(n.timecode))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(n.frame))
	}
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// Encode writes the persisted layout to w.
func (ix *Index) Encode(w io.Writer) error {
	data, err := ix.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Unmarshal decodes a persisted index, verifying magic, version, checksum,
// ascending order and uniqueness of timecodes.
func Unmarshal(data []byte) (*Index, error) {
	fail := func(reason string) error {
		return services.Wrap(services.ErrValidation, "timecode", "decode index", reason, nil)
	}

	if len(data) < len(fileMagic)+2+2+8+trailerSize {
		return nil, fail("file truncated")
	}
	body := data[:len(data)-trailerSize]
	want := binary.LittleEndian.Uint32(data[len(data)-trailerSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fail(fmt.Sprintf("checksum mismatch (stored %08x, computed %08x)", want, got))
	}

	r := bytes.NewReader(body)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != fileMagic {
		return nil, fail("bad magic")
	}
	var version, camLen uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fail("missing version")
	}
	if version != formatVersion {
		return nil, fail(fmt.Sprintf("unsupported version %d", version))
	}
	if err := binary.Read(r, binary.LittleEndian, &camLen); err != nil {
		return nil, fail("missing camera length")
	}
	camera := make([]byte, camLen)
	if _, err := io.ReadFull(r, camera); err != nil {
		return nil, fail("camera id truncated")
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fail("missing record count")
	}
	if count > uint64(r.Len()/recordSize) || uint64(r.Len()) != count*recordSize {
		return nil, fail(fmt.Sprintf("record count %d does not match payload size %d", count, r.Len()))
	}
	if len(camera) == 0 {
		return nil, fail("empty camera id")
	}

	ix := &Index{camera: string(camera), root: noChild, state: StateBuilding}
	ix.nodes = make([]node, count)
	pairs := body[len(body)-r.Len():]
	for i := range ix.nodes {
		off := i * recordSize
		tc := int64(binary.LittleEndian.Uint64(pairs[off:]))
		frame := int64(binary.LittleEndian.Uint64(pairs[off+8:]))
		if frame < 0 {
			return nil, fail(fmt.Sprintf("negative frame index at record %d", i))
		}
		if i > 0 && tc <= ix.nodes[i-1].timecode {
			return nil, fail(fmt.Sprintf("timecodes not strictly ascending at record %d", i))
		}
		ix.nodes[i] = node{timecode: tc, frame: frame, left: noChild, right: noChild}
	}
	ix.link()
	return ix, nil
}

// Decode reads a persisted index from r.
func Decode(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return Unmarshal(data)
}

// WriteFile persists the index at path using temp file + rename, so an
// existing file always holds a complete index.
func (ix *Index) WriteFile(path string) error {
	if ix.State() != StateBuilt {
		return services.Wrap(services.ErrValidation, "timecode", "write index", "index is not built", nil)
	}
	if err := fileutil.WriteAtomic(path, 0o644, ix.Encode); err != nil {
		return fmt.Errorf("write index %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a persisted index. A missing file is reported as
// services.ErrNotFound and a corrupt one as services.ErrValidation.
func ReadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "timecode", "read index", path, err)
		}
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	defer f.Close()
	ix, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}
