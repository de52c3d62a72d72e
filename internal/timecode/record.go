package timecode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"camsync/internal/services"
)

// Record is one line of a camera's timecode log.
type Record struct {
	Camera   string
	Timecode int64
	Frame    int64
}

// Descriptor renders the record as "<camera>_<timecode>_<frame>".
func (r Record) Descriptor() string {
	return FormatDescriptor(r.Camera, r.Timecode, r.Frame)
}

// FormatDescriptor renders the manifest value for a camera match.
func FormatDescriptor(camera string, timecode, frame int64) string {
	return camera + "_" + strconv.FormatInt(timecode, 10) + "_" + strconv.FormatInt(frame, 10)
}

// ParseDescriptor splits "<camera>_<timecode>_<frame>" from the right, so the
// camera portion may contain underscores.
func ParseDescriptor(value string) (Record, error) {
	prefix, tc, frame, err := ParseLine(value)
	if err != nil {
		return Record{}, err
	}
	if prefix == "" {
		return Record{}, services.Wrap(services.ErrValidation, "timecode", "parse descriptor", fmt.Sprintf("missing camera in %q", value), nil)
	}
	return Record{Camera: prefix, Timecode: tc, Frame: frame}, nil
}

// ParseLine splits a log line "<prefix>_<timecode>_<frame>" from the right.
// The prefix may be empty or contain underscores.
func ParseLine(line string) (string, int64, int64, error) {
	line = strings.TrimSpace(line)
	last := strings.LastIndexByte(line, '_')
	if last < 0 {
		return "", 0, 0, malformed(line, "expected <prefix>_<timecode>_<frame>")
	}
	frameField := line[last+1:]
	rest := line[:last]

	var prefix, tcField string
	if mid := strings.LastIndexByte(rest, '_'); mid >= 0 {
		prefix = rest[:mid]
		tcField = rest[mid+1:]
	} else {
		tcField = rest
	}

	tc, err := strconv.ParseInt(tcField, 10, 64)
	if err != nil {
		return "", 0, 0, malformed(line, "invalid timecode "+strconv.Quote(tcField))
	}
	frame, err := strconv.ParseInt(frameField, 10, 64)
	if err != nil {
		return "", 0, 0, malformed(line, "invalid frame index "+strconv.Quote(frameField))
	}
	if frame < 0 {
		return "", 0, 0, malformed(line, "negative frame index")
	}
	return prefix, tc, frame, nil
}

func malformed(line, reason string) error {
	return services.Wrap(services.ErrValidation, "timecode", "parse line", fmt.Sprintf("%s: %q", reason, line), nil)
}

// ReadLog parses a camera log in order. Blank lines are skipped and the frame
// index must increase strictly from one record to the next.
func ReadLog(r io.Reader, camera string) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		_, tc, frame, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if n := len(records); n > 0 && frame <= records[n-1].Frame {
			return nil, services.Wrap(
				services.ErrValidation,
				"timecode",
				"read log",
				fmt.Sprintf("line %d: frame index %d does not follow %d", lineNo, frame, records[n-1].Frame),
				nil,
			)
		}
		records = append(records, Record{Camera: camera, Timecode: tc, Frame: frame})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return records, nil
}

// ReadLogFile opens path and parses it with ReadLog. A missing file is
// reported as services.ErrNotFound.
func ReadLogFile(path, camera string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "timecode", "open log", path, err)
		}
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer file.Close()

	records, err := ReadLog(file, camera)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// FilterFrom drops records whose timecode is below start. A start of zero or
// less keeps every record; the result preserves log order.
func FilterFrom(records []Record, start int64) []Record {
	if start <= 0 {
		return records
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Timecode >= start {
			out = append(out, rec)
		}
	}
	return out
}
