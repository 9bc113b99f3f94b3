package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/alignecoderepos/verstash/pkg/vstore"
)

// payload is the value written by the benchmark.
type payload struct {
	ID   int    `json:"id"`
	Body string `json:"body"`
}

type benchConfig struct {
	op        string
	duration  time.Duration
	workers   int
	keySize   int
	valueSize int
	keyspace  int
	ttl       time.Duration
	report    time.Duration
}

func (c *benchConfig) validate() error {
	switch c.op {
	case "set", "get", "mixed", "versions":
	default:
		return fmt.Errorf("unknown operation: %s", c.op)
	}
	if c.workers <= 0 || c.keyspace <= 0 || c.keySize <= 0 {
		return errors.New("workers, keyspace and key-size must be positive")
	}
	if c.valueSize < 0 {
		return errors.New("value-size must not be negative")
	}
	if c.report <= 0 {
		c.report = time.Second
	}
	return nil
}

type runner struct {
	store   *vstore.Store[payload]
	cfg     benchConfig
	keys    []string
	body    string
	setOpts []vstore.SetOption

	ops  atomic.Int64
	errs atomic.Int64
}

func newRunner(s *vstore.Store[payload], cfg benchConfig) *runner {
	r := &runner{
		store: s,
		cfg:   cfg,
		keys:  makeKeys(cfg.keyspace, cfg.keySize),
		body:  strings.Repeat("abcdefghijklmnopqrstuvwxyz", cfg.valueSize/26+1)[:cfg.valueSize],
	}
	if cfg.ttl > 0 {
		r.setOpts = append(r.setOpts, vstore.WithTTL(cfg.ttl))
	}
	return r
}

func (r *runner) populate() error {
	for i, key := range r.keys {
		if err := r.store.Set(key, payload{ID: i, Body: r.body}, r.setOpts...); err != nil {
			return fmt.Errorf("populate %s: %w", key, err)
		}
	}
	fmt.Printf("populated %d keys\n", len(r.keys))
	return nil
}

// run drives the workers until ctx is done and collects their latencies.
func (r *runner) run(ctx context.Context) (*result, error) {
	start := time.Now()
	samples := make([][]time.Duration, r.cfg.workers)

	stopReport := r.startReporter()
	defer stopReport()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < r.cfg.workers; w++ {
		w := w
		g.Go(func() error {
			samples[w] = r.work(ctx, w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []time.Duration
	for _, s := range samples {
		all = append(all, s...)
	}
	slices.Sort(all)
	return &result{
		ops:       r.ops.Load(),
		errs:      r.errs.Load(),
		elapsed:   time.Since(start),
		latencies: all,
	}, nil
}

func (r *runner) work(ctx context.Context, id int) []time.Duration {
	var lat []time.Duration
	i := id % len(r.keys)
	for n := 0; ctx.Err() == nil; n++ {
		key := r.keys[i]
		t0 := time.Now()
		if err := r.step(key, i, n); err != nil {
			r.errs.Add(1)
		}
		lat = append(lat, time.Since(t0))
		r.ops.Add(1)
		i = (i + 1) % len(r.keys)
	}
	return lat
}

func (r *runner) step(key string, i, n int) error {
	switch r.cfg.op {
	case "get":
		_, _, err := r.store.Get(key)
		return err
	case "mixed":
		if i%2 == 1 {
			_, _, err := r.store.Get(key)
			return err
		}
	case "versions":
		// Four distinct IDs give each key up to four hashed versions.
		return r.store.Set(key, payload{ID: n % 4, Body: r.body}, r.setOpts...)
	}
	return r.store.Set(key, payload{ID: i, Body: r.body}, r.setOpts...)
}

func (r *runner) startReporter() (stop func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.cfg.report)
		defer ticker.Stop()

		var lastOps, lastErrs int64
		last := time.Now()
		for {
			select {
			case now := <-ticker.C:
				ops, errs := r.ops.Load(), r.errs.Load()
				secs := now.Sub(last).Seconds()
				fmt.Printf("ops %d (%.0f/s) errors %d total %d\n",
					ops-lastOps, float64(ops-lastOps)/secs, errs-lastErrs, ops)
				lastOps, lastErrs, last = ops, errs, now
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

type result struct {
	ops       int64
	errs      int64
	elapsed   time.Duration
	latencies []time.Duration // sorted
}

func (res *result) percentile(p float64) time.Duration {
	if len(res.latencies) == 0 {
		return 0
	}
	idx := int(p * float64(len(res.latencies)-1))
	return res.latencies[idx]
}

func (res *result) print() {
	secs := res.elapsed.Seconds()
	fmt.Println()
	fmt.Printf("operations  %d\n", res.ops)
	fmt.Printf("errors      %d\n", res.errs)
	fmt.Printf("elapsed     %.2fs\n", secs)
	if res.ops == 0 {
		return
	}
	fmt.Printf("throughput  %.0f ops/s\n", float64(res.ops)/secs)
	fmt.Printf("latency     p50=%s p90=%s p99=%s max=%s\n",
		res.percentile(0.50), res.percentile(0.90), res.percentile(0.99), res.percentile(1))
}

func makeKeys(count, size int) []string {
	keys := make([]string, count)
	for i := range keys {
		k := fmt.Sprintf("key_%d", i)
		if len(k) < size {
			k += strings.Repeat("x", size-len(k))
		}
		keys[i] = k
	}
	return keys
}
