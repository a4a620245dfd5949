package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lenstracker-reminders/internal/model"
	"lenstracker-reminders/internal/notification"
	"lenstracker-reminders/internal/store"
)

// ErrSweepInProgress is returned when RunSweep is called while another sweep
// on the same Engine has not finished.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Options configures an Engine.
type Options struct {
	// Workers bounds how many cycles are processed concurrently.
	Workers int
	// ClickURL is embedded in push payloads.
	ClickURL string
}

// Engine runs reminder sweeps. Push and email senders are injected so the
// engine carries no credentials of its own; a nil email sender disables the
// email channel.
type Engine struct {
	store   store.Store
	push    notification.PushSender
	email   notification.EmailSender
	log     logrus.FieldLogger
	opts    Options
	running sync.Mutex
}

// NewEngine creates an engine. Workers below 1 are raised to 1.
func NewEngine(s store.Store, push notification.PushSender, email notification.EmailSender, log logrus.FieldLogger, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ClickURL == "" {
		opts.ClickURL = "/"
	}
	return &Engine{
		store: s,
		push:  push,
		email: email,
		log:   log,
		opts:  opts,
	}
}

// RunSweep evaluates every stored cycle against now, sends what is due and
// persists the results. Only a failure to enumerate the cycle keys is
// returned as an error; per-record failures are counted in Stats.Errors.
//
// Sweeps on one Engine never overlap: a concurrent call gets
// ErrSweepInProgress. Separate processes sharing a store are not guarded.
// Once started, a sweep runs to completion even if ctx is cancelled.
func (e *Engine) RunSweep(ctx context.Context, now time.Time) (Stats, error) {
	if !e.running.TryLock() {
		return Stats{}, ErrSweepInProgress
	}
	defer e.running.Unlock()

	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	keys, err := e.store.ListCycleKeys(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to enumerate cycles: %w", err)
	}

	var (
		mu    sync.Mutex
		stats = Stats{Total: len(keys)}
		wg    sync.WaitGroup
		jobs  = make(chan string)
	)
	for i := 0; i < min(e.opts.Workers, max(len(keys), 1)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				tally := e.processKey(ctx, key, now)
				mu.Lock()
				stats.add(tally)
				mu.Unlock()
			}
		}()
	}
	for _, key := range keys {
		jobs <- key
	}
	close(jobs)
	wg.Wait()

	e.log.WithFields(logrus.Fields{
		"total":        stats.Total,
		"dueOrOverdue": stats.DueOrOverdue,
		"eligible":     stats.Eligible,
		"sent":         stats.Sent,
		"emailed":      stats.Emailed,
		"missingSub":   stats.MissingSub,
		"errors":       stats.Errors,
		"elapsed":      time.Since(started).String(),
	}).Info("sweep finished")

	return stats, nil
}

// processKey runs the read-modify-write for a single cycle. Each key is owned
// by exactly one worker for the duration of the sweep.
func (e *Engine) processKey(ctx context.Context, key string, now time.Time) Stats {
	var tally Stats
	log := e.log.WithField("key", key)

	deviceID, _, err := store.ParseCycleKey(key)
	if err != nil {
		log.WithError(err).Debug("skipping unparseable cycle key")
		return tally
	}

	c, err := e.store.GetCycleByKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrMalformed):
		log.WithError(err).Debug("skipping cycle record")
		return tally
	case err != nil:
		log.WithError(err).Warn("failed to read cycle")
		tally.Errors++
		return tally
	}

	if !IsDue(c, now) {
		return tally
	}
	tally.DueOrOverdue++
	if PushEligible(c, now) {
		tally.Eligible++
	}

	sub, err := e.store.GetSubscription(ctx, deviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		tally.MissingSub++
		return tally
	case err != nil:
		log.WithError(err).Warn("failed to read subscription")
		tally.Errors++
		return tally
	}

	policy := Policy{ClickURL: e.opts.ClickURL, EmailEnabled: e.email != nil}
	for _, action := range Plan(c, sub, now, policy) {
		if err := e.perform(ctx, c, sub, action); err != nil {
			tally.Errors++
			entry := log.WithError(err).WithField("channel", action.Kind)
			if errors.Is(err, notification.ErrSubscriptionGone) {
				entry.Warn("push subscription is gone; will retry next sweep")
			} else {
				entry.Warn("failed to send reminder")
			}
			continue
		}
		c = Apply(c, action, now)
		switch action.Kind {
		case ActionPush:
			tally.Sent++
		case ActionEmail:
			tally.Emailed++
		}
	}

	if err := e.store.PutCycleByKey(ctx, key, c); err != nil {
		log.WithError(err).Error("failed to persist cycle")
		tally.Errors++
	}
	return tally
}

// perform executes one action. A panicking sender is turned into an error so
// it cannot take down the rest of the sweep.
func (e *Engine) perform(ctx context.Context, c model.Cycle, sub model.Subscription, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s sender panicked: %v", a.Kind, r)
		}
	}()

	switch a.Kind {
	case ActionPush:
		payload, err := a.Push.Marshal()
		if err != nil {
			return fmt.Errorf("failed to encode push payload: %w", err)
		}
		return e.push.Send(ctx, sub.Subscription, payload)
	case ActionEmail:
		msg, err := notification.DueTodayEmail(a.EmailTo, c.Eye, c.DueAt)
		if err != nil {
			return err
		}
		return e.email.Send(ctx, msg)
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
}
