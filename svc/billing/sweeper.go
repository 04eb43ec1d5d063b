package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/billingcore/pkg/logger"
	"github.com/dmitrymomot/billingcore/pkg/subscription"
)

const sweepLockKey = "enforce-sweep"

// Locker grants a lease so only one instance runs a sweep at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// EnforceAller runs a full enforcement sweep.
type EnforceAller interface {
	EnforceAll(ctx context.Context) (subscription.EnforceReport, error)
}

// Sweeper re-enforces every tenant's quota on a cron schedule. It repairs
// tenants whose enforcement failed during a webhook transition.
type Sweeper struct {
	svc      EnforceAller
	locker   Locker
	lockTTL  time.Duration
	log      *slog.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper validates schedule (standard five-field cron or a descriptor
// such as "@hourly"). A nil locker runs every tick locally.
func NewSweeper(svc EnforceAller, schedule string, locker Locker, lockTTL time.Duration, log *slog.Logger) (*Sweeper, error) {
	if svc == nil {
		panic("billing: EnforceAller is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	return &Sweeper{
		svc:      svc,
		locker:   locker,
		lockTTL:  lockTTL,
		log:      log.With(logger.Component("sweeper")),
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}, nil
}

// RunOnce performs one sweep. It returns false without error when another
// instance holds the lease.
func (s *Sweeper) RunOnce(ctx context.Context) (subscription.EnforceReport, bool, error) {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
		if err != nil {
			return subscription.EnforceReport{}, false, err
		}
		if !ok {
			s.log.DebugContext(ctx, "Enforcement sweep skipped, lease held elsewhere")
			return subscription.EnforceReport{}, false, nil
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
				s.log.WarnContext(ctx, "Failed to release sweep lease", logger.Error(err))
			}
		}()
	}

	start := time.Now()
	report, err := s.svc.EnforceAll(ctx)
	s.log.InfoContext(ctx, "Enforcement sweep finished",
		slog.Int("tenants", report.Tenants),
		slog.Int("archived", report.Archived),
		slog.Int("failed", report.Failed),
		logger.Duration(time.Since(start)),
		logger.Error(err),
	)
	return report, true, err
}

// Start schedules the sweep and stops it when ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, _, err := s.RunOnce(ctx); err != nil {
			s.log.ErrorContext(ctx, "Enforcement sweep failed", logger.Error(err))
		}
	})
	if err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}

	s.cron.Start()
	s.log.InfoContext(ctx, "Enforcement sweep scheduled", slog.String("schedule", s.schedule))
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
	return nil
}
