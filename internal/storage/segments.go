package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// segmentKind is a family of numbered files in the data directory, such as
// wal-00000001.vswal.
type segmentKind struct {
	prefix string
	ext    string
}

var (
	walSegments  = segmentKind{prefix: "wal-", ext: ".vswal"}
	snapSegments = segmentKind{prefix: "snap-", ext: ".vsnap"}
)

func (k segmentKind) name(index int) string {
	return fmt.Sprintf("%s%08d%s", k.prefix, index, k.ext)
}

// index parses the number out of a file name of this kind.
func (k segmentKind) index(name string) (int, bool) {
	if !strings.HasPrefix(name, k.prefix) || !strings.HasSuffix(name, k.ext) {
		return 0, false
	}
	var n int
	digits := strings.TrimSuffix(strings.TrimPrefix(name, k.prefix), k.ext)
	if _, err := fmt.Sscanf(digits, "%d", &n); err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// list returns the names of this kind found in dir, lowest index first.
// Files with the right prefix but an unparsable number are ignored.
func (k segmentKind) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type seg struct {
		name  string
		index int
	}
	var segs []seg
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := k.index(e.Name()); ok {
			segs = append(segs, seg{name: e.Name(), index: n})
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].index < segs[j].index })

	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.name
	}
	return names, nil
}

// next returns the index following the highest one in dir, starting at 1.
func (k segmentKind) next(dir string) (int, error) {
	names, err := k.list(dir)
	if err != nil || len(names) == 0 {
		return 1, err
	}
	n, _ := k.index(names[len(names)-1])
	return n + 1, nil
}
