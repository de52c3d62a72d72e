package timecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"camsync/internal/services"
)

func TestMarshalLayout(t *testing.T) {
	ix := mustBuild(t, "cam1", []Record{{Timecode: 200, Frame: 1}, {Timecode: 100, Frame: 0}})
	data, err := ix.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if string(data[:4]) != "CTCI" {
		t.Fatalf("magic = %q", data[:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != 1 {
		t.Fatalf("version = %d", v)
	}
	if l := binary.LittleEndian.Uint16(data[6:]); l != 4 || string(data[8:12]) != "cam1" {
		t.Fatalf("camera header = %d %q", l, data[8:12])
	}
	if n := binary.LittleEndian.Uint64(data[12:]); n != 2 {
		t.Fatalf("count = %d", n)
	}
	if tc := int64(binary.LittleEndian.Uint64(data[20:])); tc != 100 {
		t.Fatalf("first timecode = %d", tc)
	}
	wantLen := 4 + 2 + 2 + 4 + 8 + 2*16 + 4
	if len(data) != wantLen {
		t.Fatalf("len = %d, want %d", len(data), wantLen)
	}
	sum := binary.LittleEndian.Uint32(data[len(data)-4:])
	if sum != crc32.ChecksumIEEE(data[:len(data)-4]) {
		t.Fatal("trailer is not the CRC of the body")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ix := mustBuild(t, "cam_front", recordsFor("cam_front", 40, -10, 90, 15, 60))
	var buf bytes.Buffer
	if err := ix.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	encoded := append([]byte(nil), buf.Bytes()...)

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Camera() != "cam_front" || decoded.Len() != 5 || decoded.State() != StateBuilt {
		t.Fatalf("unexpected decoded index: %s len=%d state=%v", decoded.Camera(), decoded.Len(), decoded.State())
	}
	if decoded.Height() != ix.Height() {
		t.Fatalf("height %d, want %d", decoded.Height(), ix.Height())
	}
	again, err := decoded.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, encoded) {
		t.Fatal("re-encoded bytes differ")
	}
	for q := int64(-20); q <= 100; q++ {
		a, aok := ix.Nearest(q, 7)
		b, bok := decoded.Nearest(q, 7)
		if a != b || aok != bok {
			t.Fatalf("query %d differs after decode", q)
		}
	}
}

func TestUnmarshalRejectsCorruption(t *testing.T) {
	ix := mustBuild(t, "cam", recordsFor("cam", 1, 2, 3))
	good, err := ix.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	resum := func(b []byte) []byte {
		body := b[:len(b)-4]
		return binary.LittleEndian.AppendUint32(append([]byte(nil), body...), crc32.ChecksumIEEE(body))
	}

	cases := map[string][]byte{
		"truncated": good[:10],
		"flipped bit": func() []byte {
			b := append([]byte(nil), good...)
			b[len(b)-10] ^= 0x01
			return b
		}(),
		"bad magic": func() []byte {
			b := append([]byte(nil), good...)
			b[0] = 'X'
			return resum(b)
		}(),
		"bad version": func() []byte {
			b := append([]byte(nil), good...)
			binary.LittleEndian.PutUint16(b[4:], 9)
			return resum(b)
		}(),
		"count mismatch": func() []byte {
			b := append([]byte(nil), good...)
			binary.LittleEndian.PutUint64(b[11:], 4)
			return resum(b)
		}(),
		"unordered": func() []byte {
			b := append([]byte(nil), good...)
			// swap the timecodes of the first two records
			first := 19
			second := first + 16
			t1 := append([]byte(nil), b[first:first+8]...)
			copy(b[first:first+8], b[second:second+8])
			copy(b[second:second+8], t1)
			return resum(b)
		}(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal(data); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestMarshalRequiresBuilt(t *testing.T) {
	var ix Index
	if _, err := ix.MarshalBinary(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWriteReadFile(t *testing.T) {
	dir := t.TempDir()
	ix := mustBuild(t, "cam2", recordsFor("cam2", 10, 20))
	path := Path(filepath.Join(dir, "indexes"), "cam2")
	if filepath.Base(path) != "cam2.tci" {
		t.Fatalf("Path = %s", path)
	}
	if err := ix.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if m, ok := loaded.Nearest(19, 1); !ok || m.Timecode != 20 {
		t.Fatalf("loaded index query = %+v %v", m, ok)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.tci")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWriteFileRejectsUnbuiltIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tci")
	if err := (&Index{camera: "cam1"}).WriteFile(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("unbuilt index left a file behind: %v", err)
	}
}
