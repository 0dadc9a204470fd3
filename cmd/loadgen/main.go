package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/lineup/internal/loadgen"
	"github.com/okian/lineup/pkg/logger"
)

// Default configuration constants.
const (
	defaultPassengers = 500
	defaultCounters   = 4
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		line       = flag.String("line", "LOAD1", "Line id to load; created if missing")
		passengers = flag.Int("passengers", defaultPassengers, "Number of passengers to join")
		counters   = flag.Int("counters", defaultCounters, "Number of counters serving the line")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent join workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for the passenger mix")
		format     = flag.String("log-format", "text", "Log format: text or json")
		verbose    = flag.Bool("verbose", false, "Log every call")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &loadgen.Config{
		BaseURL:    *baseURL,
		LineID:     *line,
		Passengers: *passengers,
		Counters:   *counters,
		Workers:    *workers,
		Timeout:    *timeout,
		Seed:       *seed,
		Verbose:    *verbose,
	}

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		os.Exit(1)
	}
}
