package loadgen

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Run joins cfg.Passengers passengers to the line, serves them with
// cfg.Counters counters until the line is empty and verifies that every
// passenger was called.
func Run(ctx context.Context, cfg *Config) (Stats, error) {
	var stats Stats
	if err := cfg.Validate(); err != nil {
		return stats, err
	}
	start := time.Now()
	log := logger.Get().Named("loadgen")
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("line", cfg.LineID),
		logger.Int("passengers", cfg.Passengers),
		logger.Int("counters", cfg.Counters),
		logger.Int("workers", cfg.Workers),
	)

	if err := c.health(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if err := c.ensureLine(ctx, cfg.LineID); err != nil {
		return stats, fmt.Errorf("create line: %w", err)
	}
	counters := make([]string, cfg.Counters)
	for i := range counters {
		counters[i] = cfg.LineID + "-counter-" + strconv.Itoa(i+1)
		if err := c.ensureCounter(ctx, counters[i]); err != nil {
			return stats, fmt.Errorf("register counter: %w", err)
		}
	}

	passengers := generatePassengers(cfg.Passengers, cfg.Seed)
	joined := joinAll(ctx, c, cfg, passengers, &stats)
	log.Info(ctx, "passengers joined", logger.Int("joined", stats.Joined), logger.Int("failed", stats.JoinFailed))

	called, err := serveAll(ctx, c, cfg, counters, &stats)
	if err != nil {
		return stats, fmt.Errorf("serve: %w", err)
	}

	err = verify(ctx, c, cfg.LineID, joined, called)
	stats.Duration = time.Since(start)
	logStats(ctx, log, stats)
	return stats, err
}

// joinAll joins passengers with at most cfg.Workers requests in flight and
// returns the subjects that were accepted. Failed joins are counted only.
func joinAll(ctx context.Context, c *client, cfg *Config, passengers []Passenger, stats *Stats) []string {
	var (
		mu     sync.Mutex
		joined = make([]string, 0, len(passengers))
		failed atomic.Int64
	)

	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	for _, p := range passengers {
		g.Go(func() error {
			if err := c.join(ctx, cfg.LineID, p); err != nil {
				failed.Add(1)
				if cfg.Verbose {
					logger.Get().Warn(ctx, "join failed", logger.String("subject", p.SubjectID), logger.Error(err))
				}
				return nil
			}
			mu.Lock()
			joined = append(joined, p.SubjectID)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats.Joined = len(joined)
	stats.JoinFailed = int(failed.Load())
	return joined
}

// serveAll runs one loop per counter that calls and completes until the line
// is empty. It returns the subjects that were called.
func serveAll(ctx context.Context, c *client, cfg *Config, counters []string, stats *Stats) (map[string]struct{}, error) {
	var (
		mu     sync.Mutex
		called = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, counterID := range counters {
		g.Go(func() error {
			for {
				resp, err := c.callNext(gctx, cfg.LineID, counterID)
				if err != nil {
					return err
				}
				switch resp.Outcome {
				case outcomeLineEmpty:
					return nil
				case outcomeCounterBusy:
					// held by an earlier run; leave it to the other counters
					mu.Lock()
					stats.CounterBusy++
					mu.Unlock()
					return nil
				case outcomeClaimed:
				default:
					return fmt.Errorf("%w: outcome %q", ErrUnexpected, resp.Outcome)
				}
				if resp.Entry == nil {
					return fmt.Errorf("%w: claimed without entry", ErrUnexpected)
				}

				mu.Lock()
				called[resp.Entry.SubjectID] = struct{}{}
				stats.Called++
				switch resp.Entry.ServiceClass {
				case model.ClassPremium:
					stats.PremiumCalls++
				case model.ClassElevated:
					stats.ElevatedCalls++
				default:
					stats.StandardCalls++
				}
				mu.Unlock()

				if cfg.Verbose {
					logger.Get().Info(gctx, "called",
						logger.String("counter", counterID),
						logger.String("subject", resp.Entry.SubjectID),
						logger.String("class", resp.Entry.ServiceClass.String()),
					)
				}

				if err := c.complete(gctx, resp.Entry.ID); err != nil {
					return err
				}
				mu.Lock()
				stats.Completed++
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if stats.CounterBusy == len(counters) {
		return nil, fmt.Errorf("%w: every counter is busy", ErrUnexpected)
	}
	return called, nil
}

// verify checks that the line drained and every joined passenger was called.
func verify(ctx context.Context, c *client, lineID string, joined []string, called map[string]struct{}) error {
	m, err := c.metrics(ctx, lineID)
	if err != nil {
		return fmt.Errorf("line metrics: %w", err)
	}
	if m.WaitingCount != 0 {
		return fmt.Errorf("%w: %d passengers still waiting", ErrVerify, m.WaitingCount)
	}
	var missing int
	for _, id := range joined {
		if _, ok := called[id]; !ok {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%w: %d joined passengers were never called", ErrVerify, missing)
	}
	return nil
}

func logStats(ctx context.Context, log logger.Logger, s Stats) {
	var perSecond float64
	if s.Duration > 0 {
		perSecond = float64(s.Called) / s.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("joined", s.Joined),
		logger.Int("joinFailed", s.JoinFailed),
		logger.Int("called", s.Called),
		logger.Int("completed", s.Completed),
		logger.Int("counterBusy", s.CounterBusy),
		logger.Int("premium", s.PremiumCalls),
		logger.Int("elevated", s.ElevatedCalls),
		logger.Int("standard", s.StandardCalls),
		logger.Duration("duration", s.Duration),
		logger.Float64("callsPerSecond", perSecond),
	)
}
