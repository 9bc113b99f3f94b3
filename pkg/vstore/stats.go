package vstore

import (
	"strconv"
	"sync/atomic"
	"time"
)

type stats struct {
	gets    atomic.Uint64
	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	removes atomic.Uint64
	expired atomic.Uint64
	corrupt atomic.Uint64
	sweeps  atomic.Uint64
	started time.Time
}

// Stats holds the counters of a Store since it was created.
type Stats struct {
	Gets         uint64
	Hits         uint64
	Misses       uint64
	Sets         uint64
	Removes      uint64
	ExpiredTotal uint64
	CorruptTotal uint64
	Sweeps       uint64
	Uptime       time.Duration
}

func (s *stats) snapshot() Stats {
	return Stats{
		Gets:         s.gets.Load(),
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		Sets:         s.sets.Load(),
		Removes:      s.removes.Load(),
		ExpiredTotal: s.expired.Load(),
		CorruptTotal: s.corrupt.Load(),
		Sweeps:       s.sweeps.Load(),
		Uptime:       time.Since(s.started),
	}
}

// Map renders the counters as name=value pairs.
func (st Stats) Map() map[string]string {
	return map[string]string{
		"uptime_ms":     strconv.FormatInt(st.Uptime.Milliseconds(), 10),
		"cmd_get":       strconv.FormatUint(st.Gets, 10),
		"get_hits":      strconv.FormatUint(st.Hits, 10),
		"get_misses":    strconv.FormatUint(st.Misses, 10),
		"cmd_set":       strconv.FormatUint(st.Sets, 10),
		"cmd_del":       strconv.FormatUint(st.Removes, 10),
		"expired_total": strconv.FormatUint(st.ExpiredTotal, 10),
		"corrupt_total": strconv.FormatUint(st.CorruptTotal, 10),
		"sweeps":        strconv.FormatUint(st.Sweeps, 10),
	}
}
