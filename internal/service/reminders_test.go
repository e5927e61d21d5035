package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigexecs/gigexecs-api/internal/email"
	"github.com/gigexecs/gigexecs-api/internal/model"
)

func TestReminderLifecycleKey(t *testing.T) {
	cases := []struct {
		days float64
		want string
	}{
		{6, ""},
		{7, "reminder_7d"},
		{7.9, "reminder_7d"},
		{8, ""},
		{14, "reminder_14d"},
		{29, ""},
		{30, "reminder_30d"},
		{30.9, "reminder_30d"},
		{31, ""},
		{59, ""},
		{60, "reminder_60d"},
		{61, ""},
		{90, "reminder_90d"},
		{720, "reminder_720d"},
		{731, ""},
	}
	for _, tc := range cases {
		got, ok := ReminderLifecycleKey(tc.days)
		assert.Equal(t, tc.want, got, "days=%v", tc.days)
		assert.Equal(t, tc.want != "", ok, "days=%v", tc.days)
	}
}

func newTestEngine(users *fakeUsers, sender *fakeSender, now time.Time) *ReminderEngine {
	e := NewReminderEngine(users, sender, nil, quiet)
	e.Now = func() time.Time { return now }
	e.BatchPause = 0
	return e
}

func TestReminderEngine_Run(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ago := func(d float64) time.Time { return now.Add(-time.Duration(d * 24 * float64(time.Hour))) }

	users := newFakeUsers()
	users.reminders = []model.User{
		{ID: "a", Email: sp("a@x.io"), UserType: model.UserTypeConsultant, CreatedAt: ago(7.2)},
		{ID: "b", Email: sp("b@x.io"), UserType: model.UserTypeClient, CreatedAt: ago(60.5)},
		{ID: "c", Email: sp("c@x.io"), UserType: model.UserTypeClient, CreatedAt: ago(10)},
		{ID: "d", Email: sp("d@x.io"), UserType: model.UserTypeClient, CreatedAt: ago(800)},
	}
	users.nudges = []model.User{
		{ID: "n1", Email: sp("n1@x.io"), FirstName: sp("Nia"), UserType: model.UserTypeConsultant},
		{ID: "n2", Email: sp("n2@x.io"), UserType: model.UserTypeClient},
	}
	users.activity["n2"] = true

	sender := newFakeSender()
	e := newTestEngine(users, sender, now)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ScanResult{Processed: 4, Sent: 2, Skipped: 1}, res.Reminders)
	assert.Equal(t, ScanResult{Processed: 2, Sent: 1, Skipped: 1}, res.Nudges)
	assert.Equal(t, ScanResult{Processed: 6, Sent: 3, Skipped: 2}, res.Totals)

	require.Len(t, sender.reqs, 3)
	assert.Equal(t, email.ReminderProfessional, sender.reqs[0].TemplateID)
	assert.Equal(t, "reminder_7d", sender.reqs[0].LifecycleKey)
	assert.Equal(t, "there", sender.reqs[0].Variables["first_name"])
	assert.Equal(t, email.ReminderClient, sender.reqs[1].TemplateID)
	assert.Equal(t, "reminder_60d", sender.reqs[1].LifecycleKey)
	assert.Equal(t, email.ActivationNudgeProfessional, sender.reqs[2].TemplateID)
	assert.Equal(t, "activation_nudge", sender.reqs[2].LifecycleKey)
	assert.Equal(t, "Nia", sender.reqs[2].Variables["first_name"])

	// a second run the same day is fully absorbed by idempotency
	res, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Totals.Sent)
	assert.Equal(t, 5, res.Totals.Skipped)
}

func TestReminderEngine_CountsErrors(t *testing.T) {
	now := time.Now()
	users := newFakeUsers()
	users.reminders = []model.User{
		{ID: "a", Email: sp("a@x.io"), CreatedAt: now.Add(-14 * 24 * time.Hour)},
		{ID: "b", Email: sp("b@x.io"), CreatedAt: now.Add(-14 * 24 * time.Hour)},
	}
	sender := newFakeSender()
	sender.failOn["a"] = true

	res, err := newTestEngine(users, sender, now).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Processed: 2, Sent: 1, Errors: 1}, res.Reminders)
}

func TestReminderEngine_Batches(t *testing.T) {
	now := time.Now()
	users := newFakeUsers()
	for i := 0; i < 120; i++ {
		users.reminders = append(users.reminders, model.User{ID: string(rune('A' + i)), Email: sp("x@y.z"), CreatedAt: now})
	}
	e := newTestEngine(users, newFakeSender(), now)
	var batches []int
	e.BatchSize = 50
	current := 0
	e.batches(context.Background(), users.reminders, func(model.User) {
		current++
		if current == 50 {
			batches = append(batches, current)
			current = 0
		}
	})
	batches = append(batches, current)
	assert.Equal(t, []int{50, 50, 20}, batches)
}

func TestReminderEngine_NotConfigured(t *testing.T) {
	sender := newFakeSender()
	sender.off = true
	_, err := newTestEngine(newFakeUsers(), sender, time.Now()).Run(context.Background())
	assert.Equal(t, errEmailUnavailable, err)
}

type fakeLocker struct {
	held bool
	err  error
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() { l.held = false }, true, nil
}

func TestReminderEngine_Lock(t *testing.T) {
	lock := &fakeLocker{held: true}
	e := newTestEngine(newFakeUsers(), newFakeSender(), time.Now())
	e.lock = lock
	_, err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	lock.held = false
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, lock.held, "released after run")

	lock.err = errors.New("redis down")
	_, err = e.Run(context.Background())
	assert.NoError(t, err)
}
