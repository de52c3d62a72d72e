package timecode

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"camsync/internal/services"
)

// State describes where an Index is in its lifecycle.
type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateBuilt
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateBuilt:
		return "built"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Match is the result of a nearest-timecode query.
type Match struct {
	Timecode int64
	Frame    int64
	Distance int64
}

const noChild = -1

type node struct {
	timecode int64
	frame    int64
	left     int32
	right    int32
}

// Index is a balanced binary search tree over one camera's timecodes. Nodes
// live in ascending timecode order in a single slice; children are slice
// offsets. The zero value is an empty index that never matches.
type Index struct {
	camera string
	nodes  []node
	root   int32
	height int
	state  State
}

// Build sorts records by timecode and constructs a balanced tree. A repeated
// timecode fails the whole build. Records whose Camera is set must belong to
// camera.
func Build(camera string, records []Record) (*Index, error) {
	camera = strings.TrimSpace(camera)
	if camera == "" {
		return nil, services.Wrap(services.ErrValidation, "timecode", "build index", "camera id is required", nil)
	}
	if len(records) > math.MaxInt32 {
		return nil, services.Wrap(services.ErrValidation, "timecode", "build index", fmt.Sprintf("%d records exceed index capacity", len(records)), nil)
	}

	ix := &Index{camera: camera, root: noChild, state: StateBuilding}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	slices.SortFunc(sorted, func(a, b Record) int {
		switch {
		case a.Timecode < b.Timecode:
			return -1
		case a.Timecode > b.Timecode:
			return 1
		default:
			return 0
		}
	})

	ix.nodes = make([]node, len(sorted))
	for i, rec := range sorted {
		if rec.Camera != "" && rec.Camera != camera {
			return nil, services.Wrap(services.ErrValidation, "timecode", "build index",
				fmt.Sprintf("record for camera %q in index for %q", rec.Camera, camera), nil)
		}
		if rec.Frame < 0 {
			return nil, services.Wrap(services.ErrValidation, "timecode", "build index",
				fmt.Sprintf("negative frame index %d at timecode %d", rec.Frame, rec.Timecode), nil)
		}
		if i > 0 && sorted[i-1].Timecode == rec.Timecode {
			return nil, services.Wrap(services.ErrValidation, "timecode", "build index",
				fmt.Sprintf("duplicate timecode %d in camera %s", rec.Timecode, camera), nil)
		}
		ix.nodes[i] = node{timecode: rec.Timecode, frame: rec.Frame, left: noChild, right: noChild}
	}

	ix.link()
	return ix, nil
}

// link wires the already sorted nodes into a balanced tree and marks the
// index built.
func (ix *Index) link() {
	ix.root, ix.height = ix.linkRange(0, len(ix.nodes)-1)
	ix.state = StateBuilt
}

func (ix *Index) linkRange(lo, hi int) (int32, int) {
	if lo > hi {
		return noChild, 0
	}
	mid := lo + (hi-lo)/2
	left, lh := ix.linkRange(lo, mid-1)
	right, rh := ix.linkRange(mid+1, hi)
	ix.nodes[mid].left = left
	ix.nodes[mid].right = right
	return int32(mid), max(lh, rh) + 1
}

// Camera returns the camera the index belongs to.
func (ix *Index) Camera() string {
	if ix == nil {
		return ""
	}
	return ix.camera
}

// State reports the lifecycle state. A nil index is empty.
func (ix *Index) State() State {
	if ix == nil {
		return StateEmpty
	}
	return ix.state
}

// Len returns the number of indexed timecodes.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.nodes)
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (ix *Index) Height() int {
	if ix == nil {
		return 0
	}
	return ix.height
}

// Min returns the smallest indexed timecode.
func (ix *Index) Min() (Record, bool) {
	if ix.Len() == 0 {
		return Record{}, false
	}
	return ix.record(0), true
}

// Max returns the largest indexed timecode.
func (ix *Index) Max() (Record, bool) {
	if ix.Len() == 0 {
		return Record{}, false
	}
	return ix.record(len(ix.nodes) - 1), true
}

// Records returns the indexed records in ascending timecode order.
func (ix *Index) Records() []Record {
	out := make([]Record, ix.Len())
	for i := range out {
		out[i] = ix.record(i)
	}
	return out
}

func (ix *Index) record(i int) Record {
	n := ix.nodes[i]
	return Record{Camera: ix.camera, Timecode: n.timecode, Frame: n.frame}
}

// Nearest returns the indexed timecode closest to timecode when its distance
// is at most maxDistance. Equidistant candidates resolve to the smaller
// timecode. A negative maxDistance or an index that is not built never
// matches.
func (ix *Index) Nearest(timecode, maxDistance int64) (Match, bool) {
	if ix.State() != StateBuilt || maxDistance < 0 || ix.root == noChild {
		return Match{}, false
	}

	var best int32 = noChild
	var bestDist uint64
	cur := ix.root
	for cur != noChild {
		n := &ix.nodes[cur]
		dist := absDiff(timecode, n.timecode)
		if best == noChild || dist < bestDist || (dist == bestDist && n.timecode < ix.nodes[best].timecode) {
			best = cur
			bestDist = dist
		}
		switch {
		case timecode < n.timecode:
			cur = n.left
		case timecode > n.timecode:
			cur = n.right
		default:
			cur = noChild
		}
	}

	if bestDist > uint64(maxDistance) {
		return Match{}, false
	}
	n := ix.nodes[best]
	return Match{Timecode: n.timecode, Frame: n.frame, Distance: int64(bestDist)}, true
}

// absDiff returns |a-b| without overflowing for values at the int64 extremes.
func absDiff(a, b int64) uint64 {
	if a >= b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}
