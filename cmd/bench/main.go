package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/alignecoderepos/verstash/internal/backends"
	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/internal/logging"
	"github.com/alignecoderepos/verstash/pkg/vstore"
)

func main() {
	var (
		configPath = flag.String("config", "verstash.toml", "Path to configuration file")
		backend    = flag.String("backend", "", "Override the configured backend (memory|file|redis|object)")
		bc         benchConfig
	)
	flag.StringVar(&bc.op, "op", "set", "Operation to benchmark (set|get|mixed|versions)")
	flag.DurationVar(&bc.duration, "duration", 10*time.Second, "Test duration")
	flag.IntVar(&bc.workers, "workers", 10, "Number of concurrent workers")
	flag.IntVar(&bc.keySize, "key-size", 16, "Key size in bytes")
	flag.IntVar(&bc.valueSize, "value-size", 100, "Value size in bytes")
	flag.IntVar(&bc.keyspace, "keyspace", 10000, "Size of key space")
	flag.DurationVar(&bc.ttl, "ttl", 0, "TTL given to written records (0 = none)")
	flag.DurationVar(&bc.report, "report", time.Second, "Reporting interval")
	flag.Parse()

	if err := bc.validate(); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if err := logging.InitLogger(cfg.LogFile, "WARN"); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logging.CloseLogger()

	b, closeBackend, err := backends.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	defer closeBackend()

	opts, err := backends.StoreOptions(cfg)
	if err != nil {
		log.Fatalf("Invalid store settings: %v", err)
	}
	s, err := vstore.New[payload](b, append(opts, vstore.WithoutInitSweep())...)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	fmt.Printf("verstash bench: backend=%s format=%s op=%s workers=%d duration=%s keyspace=%d value=%dB cpus=%d\n",
		cfg.Backend, cfg.RecordFormat, bc.op, bc.workers, bc.duration, bc.keyspace, bc.valueSize, runtime.NumCPU())

	r := newRunner(s, bc)
	if bc.op == "get" || bc.op == "mixed" {
		if err := r.populate(); err != nil {
			log.Fatalf("Pre-population failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), bc.duration)
	defer cancel()
	res, err := r.run(ctx)
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}
	res.print()

	st := s.Stats()
	fmt.Printf("store: sets=%d gets=%d hits=%d misses=%d\n", st.Sets, st.Gets, st.Hits, st.Misses)
}
