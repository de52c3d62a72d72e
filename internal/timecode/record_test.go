package timecode

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"camsync/internal/services"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		prefix string
		tc     int64
		frame  int64
	}{
		{name: "simple", line: "GX010001_1000_0", prefix: "GX010001", tc: 1000, frame: 0},
		{name: "underscored prefix", line: "rig_a_cam_7_123456_42", prefix: "rig_a_cam_7", tc: 123456, frame: 42},
		{name: "no prefix", line: "500_3", prefix: "", tc: 500, frame: 3},
		{name: "surrounding space", line: "  cam_7_8 \r", prefix: "cam", tc: 7, frame: 8},
		{name: "negative timecode", line: "cam_-20_1", prefix: "cam", tc: -20, frame: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, tc, frame, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine: %v", err)
			}
			if prefix != tt.prefix || tc != tt.tc || frame != tt.frame {
				t.Fatalf("got (%q,%d,%d), want (%q,%d,%d)", prefix, tc, frame, tt.prefix, tt.tc, tt.frame)
			}
		})
	}
}

func TestParseLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{"", "nounderscore", "cam_abc_1", "cam_1_x", "cam_1_-1", "cam_1_"} {
		if _, _, _, err := ParseLine(line); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ParseLine(%q) error = %v, want validation", line, err)
		}
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	rec := Record{Camera: "cam_front", Timecode: 310, Frame: 12}
	desc := rec.Descriptor()
	if desc != "cam_front_310_12" {
		t.Fatalf("Descriptor = %q", desc)
	}
	parsed, err := ParseDescriptor(desc)
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	if parsed != rec {
		t.Fatalf("parsed %+v, want %+v", parsed, rec)
	}
	if _, err := ParseDescriptor("310_12"); err == nil {
		t.Fatal("expected error for descriptor without camera")
	}
}

func TestReadLog(t *testing.T) {
	input := "x_100_0\n\nx_200_1\n   \nx_300_5\n"
	records, err := ReadLog(strings.NewReader(input), "camA")
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	want := []Record{{"camA", 100, 0}, {"camA", 200, 1}, {"camA", 300, 5}}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		if records[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestReadLogRejectsNonIncreasingFrames(t *testing.T) {
	_, err := ReadLog(strings.NewReader("x_100_1\nx_200_1\n"), "camA")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line number in error, got %v", err)
	}
}

func TestReadLogReportsMalformedLine(t *testing.T) {
	_, err := ReadLog(strings.NewReader("x_100_0\ngarbage\n"), "camA")
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestReadLogFileMissing(t *testing.T) {
	_, err := ReadLogFile(filepath.Join(t.TempDir(), "nope.txt"), "camA")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReadLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("a_1_0\na_2_1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	records, err := ReadLogFile(path, "camA")
	if err != nil {
		t.Fatalf("ReadLogFile: %v", err)
	}
	if len(records) != 2 || records[1].Timecode != 2 {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestFilterFrom(t *testing.T) {
	records := []Record{{"a", 300, 0}, {"a", 100, 1}, {"a", 200, 2}}
	if got := FilterFrom(records, 0); len(got) != 3 {
		t.Fatalf("start 0 should keep all, got %d", len(got))
	}
	got := FilterFrom(records, 200)
	if len(got) != 2 || got[0].Timecode != 300 || got[1].Timecode != 200 {
		t.Fatalf("unexpected filtered records %+v", got)
	}
}
