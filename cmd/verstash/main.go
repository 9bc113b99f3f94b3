package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/alignecoderepos/verstash/internal/backends"
	"github.com/alignecoderepos/verstash/internal/config"
	"github.com/alignecoderepos/verstash/internal/logging"
	"github.com/alignecoderepos/verstash/pkg/kv"
	"github.com/alignecoderepos/verstash/pkg/vstore"
)

func main() {
	var (
		configPath = flag.String("config", "verstash.toml", "Path to configuration file")
		input      = flag.String("in", "", "Input file for the value (use '-' for stdin)")
		path       = flag.String("path", "", "Dotted path inside the value to print on get")
	)
	flag.Parse()

	if len(flag.Args()) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.CloseLogger()

	backend, closeBackend, err := backends.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open backend: %v\n", err)
		os.Exit(1)
	}
	defer closeBackend()

	opts, err := backends.StoreOptions(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid store settings: %v\n", err)
		os.Exit(1)
	}
	s, err := vstore.New[any](backend, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}

	cmd := strings.ToLower(flag.Args()[0])
	args := flag.Args()[1:]

	switch cmd {
	case "get":
		err = handleGet(s, args, *path)
	case "set":
		err = handleSet(s, args, *input)
	case "rm":
		err = handleRemove(s, args)
	case "rmver":
		err = handleRemoveVersion(s, args)
	case "versions":
		err = handleVersions(s, args)
	case "ttl":
		err = handleTTL(s, args)
	case "expire":
		err = handleExpire(s, args)
	case "sweep":
		err = handleSweep(s)
	case "janitor":
		err = handleJanitor(s, cfg.SweepInterval())
	case "clear":
		err = handleClear(s)
	case "stats":
		handleStats(s, backend)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeBackend()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: verstash [options] <command> [args...]")
	fmt.Println("\nCommands:")
	fmt.Println("  get <key> [version]")
	fmt.Println("  set <key> <value> [EX <ms>] [VER <label>] [DEEP|SHALLOW]")
	fmt.Println("  rm <key>")
	fmt.Println("  rmver <key> <label>")
	fmt.Println("  versions <key>")
	fmt.Println("  ttl <key>")
	fmt.Println("  expire <key> <ttl_ms>")
	fmt.Println("  sweep")
	fmt.Println("  janitor")
	fmt.Println("  clear")
	fmt.Println("  stats")
	fmt.Println("\nOptions:")
	fmt.Println("  -config string  Path to configuration file (default \"verstash.toml\")")
	fmt.Println("  -in string      Input file for the value (use '-' for stdin)")
	fmt.Println("  -path string    Dotted path inside the value to print on get")
}

func handleGet(s *vstore.Store[any], args []string, path string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: get <key> [version]")
	}

	var (
		v   any
		ok  bool
		err error
	)
	if len(args) == 2 {
		v, ok, err = s.GetVersion(args[0], args[1])
	} else {
		v, ok, err = s.Get(args[0])
	}
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("NOT_FOUND")
		return nil
	}

	out, err := renderValue(v, path)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func handleSet(s *vstore.Store[any], args []string, inputFile string) error {
	if inputFile != "" {
		if len(args) < 1 {
			return errors.New("usage: set <key> [options...] with -in")
		}
		var (
			data []byte
			err  error
		)
		if inputFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(inputFile)
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		args = append([]string{args[0], string(data)}, args[1:]...)
	}

	req, err := parseSetArgs(args)
	if err != nil {
		return err
	}
	if err := s.Set(req.key, req.value, req.opts...); err != nil {
		if errors.Is(err, kv.ErrQuotaExceeded) {
			fmt.Println("ERR quota exceeded")
			return nil
		}
		return err
	}

	rec, err := s.Inspect(req.key)
	if err != nil {
		return err
	}
	fmt.Printf("OK %s\n", rec.CurrentVersion)
	return nil
}

func handleRemove(s *vstore.Store[any], args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rm <key>")
	}
	if err := s.Remove(args[0]); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func handleRemoveVersion(s *vstore.Store[any], args []string) error {
	if len(args) != 2 {
		return errors.New("usage: rmver <key> <label>")
	}
	if err := s.RemoveVersion(args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func handleVersions(s *vstore.Store[any], args []string) error {
	if len(args) != 1 {
		return errors.New("usage: versions <key>")
	}

	rec, err := s.Inspect(args[0])
	if errors.Is(err, vstore.ErrNotFound) {
		fmt.Println("NOT_FOUND")
		return nil
	}
	if err != nil {
		return err
	}

	for _, label := range rec.Labels() {
		marker := " "
		if label == rec.CurrentVersion {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, label)
	}
	if at, ok := rec.ExpiresAt(); ok {
		fmt.Printf("EXPIRES %s\n", at.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

func handleTTL(s *vstore.Store[any], args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ttl <key>")
	}

	ttl, err := s.TTL(args[0])
	switch {
	case errors.Is(err, vstore.ErrNotFound):
		fmt.Println(-2)
	case err != nil:
		return err
	case ttl == vstore.NoTTL:
		fmt.Println(-1)
	default:
		fmt.Println(ttl.Milliseconds())
	}
	return nil
}

func handleExpire(s *vstore.Store[any], args []string) error {
	if len(args) != 2 {
		return errors.New("usage: expire <key> <ttl_ms>")
	}

	ms, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid TTL: %w", err)
	}

	err = s.Expire(args[0], time.Duration(ms)*time.Millisecond)
	if errors.Is(err, vstore.ErrNotFound) {
		fmt.Println("NOT_FOUND")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func handleSweep(s *vstore.Store[any]) error {
	removed, err := s.CleanupExpired()
	if err != nil {
		return err
	}
	fmt.Printf("REMOVED %d\n", removed)
	return nil
}

// handleJanitor sweeps on the configured interval until interrupted.
func handleJanitor(s *vstore.Store[any], interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweep_interval_ms must be positive to run the janitor")
	}

	stop := s.StartJanitor(interval)
	fmt.Printf("Janitor sweeping every %s\n", interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	stop()
	return nil
}

func handleClear(s *vstore.Store[any]) error {
	if err := s.Clear(); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func handleStats(s *vstore.Store[any], backend kv.Backend) {
	stats := s.Stats().Map()
	if src, ok := backend.(interface{ GetStats() map[string]string }); ok {
		for k, v := range src.GetStats() {
			stats["backend_"+k] = v
		}
	}

	keys := maps.Keys(stats)
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Printf("%s=%s\n", key, stats[key])
	}
	fmt.Println("END")
}
