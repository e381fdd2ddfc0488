// Package scheduler runs the polling loops that fire time triggers and
// deliver due reminders. Two tickers run independently: day-scale time
// triggers need coarser cadence than reminder/snooze sweeps.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/arguslabs/argus/server/internal/model"
	"github.com/arguslabs/argus/server/internal/notify"
	"github.com/arguslabs/argus/server/internal/store"
)

// Config controls sweep cadence and policy.
type Config struct {
	// TriggerInterval is the time-trigger sweep cadence.
	TriggerInterval time.Duration
	// ReminderInterval is the reminder/snooze sweep cadence.
	ReminderInterval time.Duration
	// Tolerance is the forward window that absorbs poll jitter: a trigger
	// due within now+Tolerance fires on this tick.
	Tolerance time.Duration
	// ExpireAfter marks events expired once event_time+ExpireAfter has
	// passed without user action. Zero disables the expiry sweep.
	ExpireAfter time.Duration
}

// Sweeper owns the polling loops. All event mutation goes through the
// store's conditional updates, so a sweeper and the action dispatcher can
// run concurrently without double-firing.
type Sweeper struct {
	store       store.Store
	broadcaster notify.Broadcaster
	cfg         Config
	log         zerolog.Logger

	now func() time.Time
}

// New builds a sweeper.
func New(s store.Store, b notify.Broadcaster, cfg Config, log zerolog.Logger) *Sweeper {
	return &Sweeper{store: s, broadcaster: b, cfg: cfg, log: log, now: time.Now}
}

// Run starts both loops and blocks until ctx is canceled. Each loop runs
// once immediately, then on its own ticker.
func (s *Sweeper) Run(ctx context.Context) error {
	go s.loop(ctx, s.cfg.TriggerInterval, func() {
		if _, err := s.SweepTriggers(ctx); err != nil {
			s.log.Error().Err(err).Msg("trigger sweep failed")
		}
		if s.cfg.ExpireAfter > 0 {
			if _, err := s.SweepExpired(ctx); err != nil {
				s.log.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	})

	s.loop(ctx, s.cfg.ReminderInterval, func() {
		if _, err := s.SweepReminders(ctx); err != nil {
			s.log.Error().Err(err).Msg("reminder sweep failed")
		}
		if _, err := s.SweepSnoozed(ctx); err != nil {
			s.log.Error().Err(err).Msg("snooze sweep failed")
		}
	})
	return ctx.Err()
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// SweepTriggers fires every unfired time trigger due within the tolerance
// window. The fired mark is claimed first and is permanent regardless of
// delivery, so each trigger fires at most once across repeated and
// concurrent sweeps. A trigger whose owning event is gone or inactive is
// consumed without a notification, and the batch continues. A store read
// failure consumes nothing; the trigger stays queued for the next tick.
func (s *Sweeper) SweepTriggers(ctx context.Context) (int, error) {
	triggers, err := s.store.Triggers().ListUnfiredTimed(ctx)
	if err != nil {
		return 0, err
	}

	deadline := s.now().Add(s.cfg.Tolerance)
	fired := 0
	for _, tr := range triggers {
		at, err := time.Parse(time.RFC3339, tr.TriggerValue)
		if err != nil {
			s.log.Warn().Int64("trigger", tr.ID).Str("value", tr.TriggerValue).
				Msg("unparseable trigger value, consuming")
			if _, err := s.store.Triggers().MarkFired(ctx, tr.ID); err != nil {
				s.log.Error().Err(err).Int64("trigger", tr.ID).Msg("mark fired failed")
			}
			continue
		}
		if at.After(deadline) {
			continue
		}

		ev, err := s.store.Events().Get(ctx, tr.EventID)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				// Transient store failure: leave the trigger unfired and
				// retry it on the next tick.
				s.log.Error().Err(err).Int64("trigger", tr.ID).Int64("event", tr.EventID).
					Msg("owner lookup failed, will retry")
				continue
			}
			s.log.Warn().Int64("trigger", tr.ID).Int64("event", tr.EventID).
				Msg("consuming trigger for deleted event")
			if _, err := s.store.Triggers().MarkFired(ctx, tr.ID); err != nil {
				s.log.Error().Err(err).Int64("trigger", tr.ID).Msg("mark fired failed")
			}
			continue
		}
		if !ev.Status.Active() {
			s.log.Warn().Int64("trigger", tr.ID).Int64("event", tr.EventID).
				Str("status", string(ev.Status)).Msg("skipping trigger for inactive event")
			if _, err := s.store.Triggers().MarkFired(ctx, tr.ID); err != nil {
				s.log.Error().Err(err).Int64("trigger", tr.ID).Msg("mark fired failed")
			}
			continue
		}

		claimed, err := s.store.Triggers().MarkFired(ctx, tr.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("trigger", tr.ID).Msg("mark fired failed")
			continue
		}
		if !claimed {
			continue
		}

		s.broadcaster.Publish(notify.FromEvent(ev, string(tr.TriggerType), notify.PopupEventReminder))
		fired++
		s.log.Info().Int64("trigger", tr.ID).Int64("event", ev.ID).
			Str("type", string(tr.TriggerType)).Msg("time trigger fired")
	}
	return fired, nil
}

// SweepReminders transitions scheduled events whose reminder time has
// passed to reminded and emits a reminder for each. The status claim is
// conditional, so an event acted on between the read and the write is
// simply skipped.
func (s *Sweeper) SweepReminders(ctx context.Context) (int, error) {
	due, err := s.store.Events().DueReminders(ctx, model.StatusScheduled, s.now().Unix())
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range due {
		ok, err := s.store.Events().Transition(ctx, ev.ID,
			[]model.Status{model.StatusScheduled}, model.StatusReminded)
		if err != nil {
			s.log.Error().Err(err).Int64("event", ev.ID).Msg("reminder transition failed")
			continue
		}
		if !ok {
			continue
		}
		s.broadcaster.Publish(notify.FromEvent(ev, notify.TriggerReminder, notify.PopupEventReminder))
		delivered++
		s.log.Info().Int64("event", ev.ID).Msg("reminder fired")
	}
	return delivered, nil
}

// SweepSnoozed returns snoozed events whose snooze deadline has passed to
// scheduled and re-delivers each as a fresh reminder. The reminder time is
// cleared in the same statement so the next reminder sweep does not fire a
// duplicate.
func (s *Sweeper) SweepSnoozed(ctx context.Context) (int, error) {
	due, err := s.store.Events().DueReminders(ctx, model.StatusSnoozed, s.now().Unix())
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range due {
		ok, err := s.store.Events().TransitionWithReminder(ctx, ev.ID,
			[]model.Status{model.StatusSnoozed}, model.StatusScheduled, nil)
		if err != nil {
			s.log.Error().Err(err).Int64("event", ev.ID).Msg("snooze transition failed")
			continue
		}
		if !ok {
			continue
		}
		s.broadcaster.Publish(notify.FromEvent(ev, notify.TriggerSnooze, notify.PopupSnoozeReminder))
		delivered++
		s.log.Info().Int64("event", ev.ID).Msg("snooze elapsed, reminder re-fired")
	}
	return delivered, nil
}

// SweepExpired marks events whose absolute time passed ExpireAfter ago with
// no user action as expired.
func (s *Sweeper) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.ExpireAfter).Unix()
	n, err := s.store.Events().ExpireOverdue(ctx, model.ActiveStatuses(), cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("events expired")
	}
	return n, nil
}
