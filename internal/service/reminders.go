package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gigexecs/gigexecs-api/internal/email"
	"github.com/gigexecs/gigexecs-api/internal/model"
)

const (
	recurringIntervalDays = 30
	maxReminderDays       = 24 * 30
)

var fixedReminderDays = []float64{7, 14, 30}

// ReminderLifecycleKey returns the lifecycle key of the profile reminder
// due days after registration, or false when none is due.  Each reminder
// has a one-day window so a daily run hits it exactly once: 7, 14 and 30
// days, then every 30 days up to 24 months.
func ReminderLifecycleKey(days float64) (string, bool) {
	if days < 0 || days > maxReminderDays {
		return "", false
	}
	for _, d := range fixedReminderDays {
		if days >= d && days < d+1 {
			return fmt.Sprintf("reminder_%dd", int(d)), true
		}
	}
	last := fixedReminderDays[len(fixedReminderDays)-1]
	if days > last {
		since := days - last
		n := math.Floor(since / recurringIntervalDays)
		if math.Mod(since, recurringIntervalDays) < 1 && n > 0 {
			return fmt.Sprintf("reminder_%dd", int(last+n*recurringIntervalDays)), true
		}
	}
	return "", false
}

// ReminderUsers is the part of the user store the scans need.
type ReminderUsers interface {
	ListReminderCandidates(ctx context.Context, limit int) ([]model.User, error)
	ListNudgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]model.User, error)
	HasActivity(ctx context.Context, id string, t model.UserType) (bool, error)
}

// TemplateSender sends one templated email idempotently.
type TemplateSender interface {
	Configured() bool
	Send(ctx context.Context, req email.SendRequest) email.Result
}

// Locker guards a run against overlapping runs on other processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// RedisLocker implements Locker with SET NX.
type RedisLocker struct{ Client *redis.Client }

func (l RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func() {
		// only delete our own lock
		ctx := context.Background()
		if v, err := l.Client.Get(ctx, key).Result(); err == nil && v == token {
			l.Client.Del(ctx, key)
		}
	}
	return unlock, true, nil
}

// ErrRunInProgress is returned when another reminder run holds the lock.
var ErrRunInProgress = errors.New("reminder run already in progress")

// ScanResult counts one scan.
type ScanResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

func (r ScanResult) add(o ScanResult) ScanResult {
	return ScanResult{r.Processed + o.Processed, r.Sent + o.Sent, r.Skipped + o.Skipped, r.Errors + o.Errors}
}

// RunResult summarises a reminder run.
type RunResult struct {
	Success    bool       `json:"success"`
	DurationMS int64      `json:"duration_ms"`
	Reminders  ScanResult `json:"reminders"`
	Nudges     ScanResult `json:"nudges"`
	Totals     ScanResult `json:"totals"`
}

// ReminderEngine sends profile completion reminders and activation
// nudges.  Safe to run repeatedly: every send goes through the idempotent
// dispatcher with a deterministic lifecycle key.
type ReminderEngine struct {
	users  ReminderUsers
	sender TemplateSender
	lock   Locker
	logger *log.Logger

	Now           func() time.Time
	BatchSize     int
	BatchPause    time.Duration
	ReminderLimit int
	NudgeLimit    int
	NudgeAfter    time.Duration
	LockTTL       time.Duration
}

// NewReminderEngine wires an engine.  lock may be nil.
func NewReminderEngine(users ReminderUsers, sender TemplateSender, lock Locker, logger *log.Logger) *ReminderEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &ReminderEngine{
		users:         users,
		sender:        sender,
		lock:          lock,
		logger:        logger,
		Now:           time.Now,
		BatchSize:     50,
		BatchPause:    time.Second,
		ReminderLimit: 500,
		NudgeLimit:    200,
		NudgeAfter:    3 * 24 * time.Hour,
		LockTTL:       30 * time.Minute,
	}
}

const reminderLockKey = "reminders:run"

// Run performs both scans.
func (e *ReminderEngine) Run(ctx context.Context) (RunResult, error) {
	if !e.sender.Configured() {
		return RunResult{}, errEmailUnavailable
	}
	if e.lock != nil {
		unlock, ok, err := e.lock.TryLock(ctx, reminderLockKey, e.LockTTL)
		switch {
		case err != nil:
			// no lock store: run anyway, idempotency keys still hold
			e.logger.Printf("reminders: lock unavailable, running unguarded: %v", err)
		case !ok:
			return RunResult{}, ErrRunInProgress
		default:
			defer unlock()
		}
	}

	start := time.Now()
	e.logger.Printf("reminders: starting run")
	rem := e.processReminders(ctx)
	nud := e.processNudges(ctx)
	res := RunResult{
		Success:    true,
		DurationMS: time.Since(start).Milliseconds(),
		Reminders:  rem,
		Nudges:     nud,
		Totals:     rem.add(nud),
	}
	e.logger.Printf("reminders: completed in %dms: sent=%d skipped=%d errors=%d",
		res.DurationMS, res.Totals.Sent, res.Totals.Skipped, res.Totals.Errors)
	return res, nil
}

func templateFor(t model.UserType, pro, client email.TemplateID) email.TemplateID {
	if t == model.UserTypeConsultant {
		return pro
	}
	return client
}

// batches calls fn for each user, pausing between batches.  It stops early
// when ctx is done.
func (e *ReminderEngine) batches(ctx context.Context, users []model.User, fn func(model.User)) {
	size := max(e.BatchSize, 1)
	for i := 0; i < len(users); i += size {
		end := min(i+size, len(users))
		for _, u := range users[i:end] {
			if ctx.Err() != nil {
				return
			}
			fn(u)
		}
		if end < len(users) && e.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.BatchPause):
			}
		}
	}
}

func (e *ReminderEngine) send(ctx context.Context, r *ScanResult, req email.SendRequest) {
	res := e.sender.Send(ctx, req)
	switch {
	case res.Skipped:
		r.Skipped++
	case res.Success:
		e.logger.Printf("reminders: sent %s to user %s (%s)", req.TemplateID, req.UserID, req.LifecycleKey)
		r.Sent++
	default:
		e.logger.Printf("reminders: failed to send %s to user %s: %s", req.TemplateID, req.UserID, res.Error)
		r.Errors++
	}
}

func (e *ReminderEngine) processReminders(ctx context.Context) ScanResult {
	var r ScanResult
	users, err := e.users.ListReminderCandidates(ctx, e.ReminderLimit)
	if err != nil {
		e.logger.Printf("reminders: fetching reminder candidates: %v", err)
		r.Errors++
		return r
	}
	now := e.Now()
	e.batches(ctx, users, func(u model.User) {
		r.Processed++
		days := math.Floor(now.Sub(u.CreatedAt).Hours() / 24)
		if days > maxReminderDays {
			r.Skipped++
			return
		}
		key, ok := ReminderLifecycleKey(days)
		if !ok || u.Email == nil {
			return
		}
		e.send(ctx, &r, email.SendRequest{
			UserID:       u.ID,
			Email:        *u.Email,
			TemplateID:   templateFor(u.UserType, email.ReminderProfessional, email.ReminderClient),
			Variables:    map[string]string{"first_name": u.FirstNameOr("there")},
			LifecycleKey: key,
		})
	})
	return r
}

func (e *ReminderEngine) processNudges(ctx context.Context) ScanResult {
	var r ScanResult
	users, err := e.users.ListNudgeCandidates(ctx, e.Now().Add(-e.NudgeAfter), e.NudgeLimit)
	if err != nil {
		e.logger.Printf("reminders: fetching nudge candidates: %v", err)
		r.Errors++
		return r
	}
	e.batches(ctx, users, func(u model.User) {
		r.Processed++
		active, err := e.users.HasActivity(ctx, u.ID, u.UserType)
		if err != nil {
			e.logger.Printf("reminders: activity check for %s: %v", u.ID, err)
			r.Errors++
			return
		}
		if active {
			r.Skipped++
			return
		}
		if u.Email == nil {
			return
		}
		e.send(ctx, &r, email.SendRequest{
			UserID:       u.ID,
			Email:        *u.Email,
			TemplateID:   templateFor(u.UserType, email.ActivationNudgeProfessional, email.ActivationNudgeClient),
			Variables:    map[string]string{"first_name": u.FirstNameOr("there")},
			LifecycleKey: "activation_nudge",
		})
	})
	return r
}
