package snooze

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
)

type stubRepo struct {
	out.MessageRepository

	due     []*domain.Message
	dueErr  error
	wokenBy []int64
	wakeErr error
}

func (r *stubRepo) DueSnoozed(_ context.Context, _ time.Time, _ int) ([]*domain.Message, error) {
	return r.due, r.dueErr
}

func (r *stubRepo) WakeSnoozed(_ context.Context, ids []int64) (int, error) {
	if r.wakeErr != nil {
		return 0, r.wakeErr
	}
	r.wokenBy = ids
	return len(ids), nil
}

func TestRun(t *testing.T) {
	repo := &stubRepo{
		due: []*domain.Message{
			{ID: 7, MailboxID: 1},
			{ID: 9, MailboxID: 1},
		},
	}
	svc := NewService(repo, 100)

	woken, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if woken != 2 {
		t.Errorf("woken = %d, want 2", woken)
	}
	if len(repo.wokenBy) != 2 || repo.wokenBy[0] != 7 || repo.wokenBy[1] != 9 {
		t.Errorf("woke ids %v, want [7 9]", repo.wokenBy)
	}
}

func TestRun_NothingDue(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, 100)

	woken, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if woken != 0 {
		t.Errorf("woken = %d, want 0", woken)
	}
	if repo.wokenBy != nil {
		t.Error("WakeSnoozed called for an empty batch")
	}
}

func TestRun_ScanFailure(t *testing.T) {
	repo := &stubRepo{dueErr: errors.New("db down")}
	svc := NewService(repo, 100)

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("Run() expected error")
	}
}
