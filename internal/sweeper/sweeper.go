// Package sweeper runs the relay's background maintenance jobs:
// deactivating sessions/machines whose heartbeat has gone stale, and
// discarding pairing requests nobody ever completed (§4, §8
// invariant 8 — "a live WebSocket connection does not substitute for a
// heartbeat").
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/consortium/relay/internal/db"
	"github.com/consortium/relay/internal/logger"
)

const (
	// staleAfter mirrors the ±10 minute heartbeat window clients are
	// held to (§4.5, §8 invariant 8): no heartbeat inside that window
	// means the connection is presumed gone.
	staleAfter = 10 * time.Minute
	// pairingTTL bounds how long an unclaimed pairing request lingers
	// before it's swept (§3: "terminal thereafter").
	pairingTTL = 24 * time.Hour
)

// Sweeper periodically deactivates stale sessions/machines and removes
// expired pairing requests.
type Sweeper struct {
	store *db.Database
	cron  *cron.Cron
}

// New constructs a Sweeper bound to store. Jobs are registered but not
// started until Start is called.
func New(store *db.Database) *Sweeper {
	return &Sweeper{store: store, cron: cron.New()}
}

// Start schedules the maintenance jobs and begins running them in the
// background. It returns once every job is registered; the cron
// scheduler itself runs on its own goroutine until Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("*/1 * * * *", s.wrapJob(ctx, "deactivate-stale", s.deactivateStale)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 * * * *", s.wrapJob(ctx, "sweep-pairing-requests", s.sweepPairingRequests)); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// wrapJob adds panic recovery and logging around a job so one bad run
// never kills the scheduler (§4.6).
func (s *Sweeper) wrapJob(ctx context.Context, name string, job func(context.Context)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Module("sweeper").Error().Interface("panic", r).Str("job", name).Msg("recovered from panic")
			}
		}()
		job(ctx)
	}
}

func (s *Sweeper) deactivateStale(ctx context.Context) {
	staleBefore := time.Now().Add(-staleAfter)

	sessions, err := s.store.DeactivateStaleSessions(ctx, staleBefore)
	if err != nil {
		logger.Module("sweeper").Error().Err(err).Msg("failed to deactivate stale sessions")
	} else if sessions > 0 {
		logger.Module("sweeper").Debug().Int64("count", sessions).Msg("deactivated stale sessions")
	}

	machines, err := s.store.DeactivateStaleMachines(ctx, staleBefore)
	if err != nil {
		logger.Module("sweeper").Error().Err(err).Msg("failed to deactivate stale machines")
	} else if machines > 0 {
		logger.Module("sweeper").Debug().Int64("count", machines).Msg("deactivated stale machines")
	}
}

func (s *Sweeper) sweepPairingRequests(ctx context.Context) {
	count, err := s.store.DeleteStalePairingRequests(ctx, time.Now().Add(-pairingTTL))
	if err != nil {
		logger.Module("sweeper").Error().Err(err).Msg("failed to sweep stale pairing requests")
		return
	}
	if count > 0 {
		logger.Module("sweeper").Debug().Int64("count", count).Msg("swept stale pairing requests")
	}
}
