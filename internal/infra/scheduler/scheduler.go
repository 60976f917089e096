package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain"
	"vpn-shop-bot/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	jobExpirePending = "expire_pending"
	jobKeyReminders  = "key_reminders"

	reminderWindow = 24 * time.Hour
	jobTimeout     = 2 * time.Minute
)

// PendingExpirer fails pending transactions older than ttl.
type PendingExpirer interface {
	ExpirePending(ctx context.Context, ttl time.Duration) (int64, error)
}

// Reminder notifies owners of keys that expire soon.
type Reminder interface {
	SendExpiryReminders(ctx context.Context, within time.Duration) (int, error)
}

// Locker keeps a job to one bot instance at a time. RedisLocker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// Scheduler runs the periodic maintenance jobs on cron expressions.
type Scheduler struct {
	cron     *cron.Cron
	expirer  PendingExpirer
	reminder Reminder
	locker   Locker
	ttl      time.Duration
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg config.SchedulerConfig, expirer PendingExpirer, reminder Reminder, locker Locker, logger *zerolog.Logger) (*Scheduler, error) {
	l := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: &l}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		), cron.WithLogger(cl)),
		expirer:  expirer,
		reminder: reminder,
		locker:   locker,
		ttl:      cfg.PendingTTL,
		log:      &l,
		ctx:      context.Background(),
	}
	if _, err := s.cron.AddFunc(cfg.PendingExpiryCron, func() { s.run(jobExpirePending) }); err != nil {
		return nil, fmt.Errorf("pending_expiry_cron %q: %w", cfg.PendingExpiryCron, err)
	}
	if _, err := s.cron.AddFunc(cfg.ReminderCron, func() { s.run(jobKeyReminders) }); err != nil {
		return nil, fmt.Errorf("reminder_cron %q: %w", cfg.ReminderCron, err)
	}
	return s, nil
}

// Start schedules the jobs; they stop when parent is cancelled or Stop is called.
func (s *Scheduler) Start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) run(job string) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()
	log := s.log.With().Str("job", job).Logger()

	if s.locker != nil {
		key := "vpnshop:job:" + job
		token, err := s.locker.TryLock(ctx, key, jobTimeout)
		if errors.Is(err, domain.ErrLocked) {
			log.Debug().Msg("job held by another instance")
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("job lock unavailable")
			metrics.IncJobRun(job, "failed")
			return
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn().Err(err).Msg("job unlock failed")
			}
		}()
	}

	var (
		n   int64
		err error
	)
	switch job {
	case jobExpirePending:
		n, err = s.expirer.ExpirePending(ctx, s.ttl)
	case jobKeyReminders:
		var sent int
		sent, err = s.reminder.SendExpiryReminders(ctx, reminderWindow)
		n = int64(sent)
	}
	if err != nil {
		metrics.IncJobRun(job, "failed")
		log.Error().Err(err).Msg("job failed")
		return
	}
	metrics.IncJobRun(job, "ok")
	if n > 0 {
		log.Info().Int64("count", n).Msg("job done")
	}
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{ log *zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error().Err(err).Fields(kv).Msg(msg)
}
