package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Redis keys used by the sweep scheduler.
const (
	KeySweepLock = "boneboard:sweep:lock"
	KeySweepLast = "boneboard:sweep:last"
)

// Sweeper is satisfied by *Service.
type Sweeper interface {
	Sweep(ctx context.Context) (*SweepResult, error)
}

// releaseLock deletes the lock only while it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Scheduler wraps robfig/cron and runs the sweep on a fixed spec. With a Redis
// client each tick first takes a best-effort lock so replicas do not sweep at
// the same time; the sweep is safe to run twice either way.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	rdb     *redis.Client
	spec    string
	lockTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler. rdb may be nil.
func NewScheduler(sweeper Sweeper, rdb *redis.Client, spec string, lockTTL time.Duration) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	logger := cronLogger{log.With().Str("component", "sweep-scheduler").Logger()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		sweeper: sweeper,
		rdb:     rdb,
		spec:    spec,
		lockTTL: lockTTL,
	}
}

// Start registers the job and starts the scheduler. It also runs one sweep
// immediately so stale statuses are written without waiting for the first tick.
func (s *Scheduler) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	log.Info().Str("spec", s.spec).Msg("scheduler: cron started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(s.ctx)
	}()
	return nil
}

// Stop cancels in-flight sweeps and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Info().Msg("scheduler: cron stopped")
}

// RunOnce performs one locked sweep and records its result. It returns nil
// without sweeping when another replica holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (*SweepResult, error) {
	token := uuid.New().String()
	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, KeySweepLock, token, s.lockTTL).Result()
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("scheduler: sweep lock unavailable, sweeping anyway")
		case !ok:
			log.Debug().Msg("scheduler: sweep lock held elsewhere, skipping tick")
			return nil, nil
		default:
			defer func() {
				if err := releaseLock.Run(context.Background(), s.rdb, []string{KeySweepLock}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
					log.Warn().Err(err).Msg("scheduler: sweep lock release failed")
				}
			}()
		}
	}

	res, err := s.sweeper.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: sweep failed")
		return nil, err
	}
	if s.rdb != nil {
		b, _ := json.Marshal(res)
		if err := s.rdb.Set(ctx, KeySweepLast, b, 0).Err(); err != nil {
			log.Warn().Err(err).Msg("scheduler: storing sweep result failed")
		}
	}
	return res, nil
}

// LastSweep reads the most recent result written by any replica.
func LastSweep(ctx context.Context, rdb *redis.Client) (*SweepResult, error) {
	if rdb == nil {
		return nil, nil
	}
	b, err := rdb.Get(ctx, KeySweepLast).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res SweepResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
