package service

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gigexecs/gigexecs-api/internal/email"
	"github.com/gigexecs/gigexecs-api/internal/model"
	"github.com/gigexecs/gigexecs-api/internal/repository"
)

var quiet = log.New(io.Discard, "", 0)

func sp(s string) *string { return &s }

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]model.User
	updates  []model.VettingStatus
	failWith error
	activity map[string]bool

	reminders []model.User
	nudges    []model.User
}

func newFakeUsers(us ...model.User) *fakeUsers {
	f := &fakeUsers{users: map[string]model.User{}, activity: map[string]bool{}}
	for _, u := range us {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return u, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateVettingStatus(_ context.Context, id string, s model.VettingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	u := f.users[id]
	u.VettingStatus = &s
	f.users[id] = u
	f.updates = append(f.updates, s)
	return nil
}

func (f *fakeUsers) ListReminderCandidates(context.Context, int) ([]model.User, error) {
	return f.reminders, nil
}

func (f *fakeUsers) ListNudgeCandidates(context.Context, time.Time, int) ([]model.User, error) {
	return f.nudges, nil
}

func (f *fakeUsers) HasActivity(_ context.Context, id string, _ model.UserType) (bool, error) {
	return f.activity[id], nil
}

type fakeDecisions struct{ rows []model.VettingDecision }

func (f *fakeDecisions) InsertDecision(_ context.Context, d model.VettingDecision) error {
	f.rows = append(f.rows, d)
	return nil
}

type fakeAudit struct {
	mu   sync.Mutex
	rows []repository.AuditEntry
	err  error
}

func (f *fakeAudit) InsertAudit(_ context.Context, e repository.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, e)
	return nil
}

type fakeTriggers struct {
	calls []email.TriggerRequest
}

func (f *fakeTriggers) SendTrigger(_ context.Context, req email.TriggerRequest) email.TriggerResult {
	f.calls = append(f.calls, req)
	out := email.TriggerResult{Success: true, Results: map[string]email.Result{}}
	for _, id := range email.TemplatesFor(req.Trigger, req.UserType) {
		out.Results[string(id)] = email.Result{Success: true, MessageID: "m-" + string(id)}
	}
	return out
}

// fakeSender records templated sends and skips repeated lifecycle keys.
type fakeSender struct {
	mu     sync.Mutex
	sent   map[string]bool
	reqs   []email.SendRequest
	failOn map[string]bool
	off    bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[string]bool{}, failOn: map[string]bool{}}
}

func (f *fakeSender) Configured() bool { return !f.off }

func (f *fakeSender) Send(_ context.Context, req email.SendRequest) email.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.failOn[req.UserID] {
		return email.Result{Error: "provider down"}
	}
	k := req.UserID + "|" + req.LifecycleKey
	if f.sent[k] {
		return email.Result{Success: true, Skipped: true}
	}
	f.sent[k] = true
	return email.Result{Success: true, MessageID: "m1"}
}
