package message

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/in"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/core/service/column"
	"mailboard_server/pkg/apperr"
)

type stubMailboxRepo struct {
	out.MailboxRepository
	mailbox *domain.Mailbox
}

func (r *stubMailboxRepo) GetByID(_ context.Context, id int64) (*domain.Mailbox, error) {
	if r.mailbox == nil || r.mailbox.ID != id {
		return nil, apperr.NotFound("mailbox")
	}
	return r.mailbox, nil
}

func (r *stubMailboxRepo) UpdateTokens(context.Context, int64, string, string, *time.Time) error {
	return nil
}

type stubColumnRepo struct {
	out.ColumnRepository
	columns map[int64]*domain.Column
}

func (r *stubColumnRepo) GetByID(_ context.Context, id int64) (*domain.Column, error) {
	if col, ok := r.columns[id]; ok {
		return col, nil
	}
	return nil, apperr.NotFound("column")
}

func (r *stubColumnRepo) SetProviderLabelID(_ context.Context, id int64, labelID string) error {
	if col, ok := r.columns[id]; ok {
		col.ProviderLabelID = labelID
		return nil
	}
	return apperr.NotFound("column")
}

type stubMessageRepo struct {
	out.MessageRepository
	msg *domain.Message

	updatedLabels []string
	updatedColumn *int64
	updateCalls   int
	softDeleted   bool
	snoozedUntil  *time.Time
	workflow      *out.WorkflowPatch
	insights      *domain.MessageInsights
}

func (r *stubMessageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	if r.msg == nil || r.msg.ID != id {
		return nil, apperr.NotFound("message")
	}
	cp := *r.msg
	cp.Labels = append([]string{}, r.msg.Labels...)
	return &cp, nil
}

func (r *stubMessageRepo) UpdateLabels(_ context.Context, _ int64, labels []string, columnID *int64) error {
	r.updateCalls++
	r.updatedLabels = labels
	r.updatedColumn = columnID
	return nil
}

func (r *stubMessageRepo) SoftDelete(context.Context, int64) error {
	r.softDeleted = true
	return nil
}

func (r *stubMessageRepo) SetSnooze(_ context.Context, _ int64, until time.Time) error {
	r.snoozedUntil = &until
	return nil
}

func (r *stubMessageRepo) ClearSnooze(context.Context, int64) error {
	r.snoozedUntil = nil
	return nil
}

func (r *stubMessageRepo) UpdateWorkflow(_ context.Context, _ int64, w *out.WorkflowPatch) error {
	r.workflow = w
	return nil
}

func (r *stubMessageRepo) UpdateInsights(_ context.Context, _ int64, insights *domain.MessageInsights) error {
	r.insights = insights
	return nil
}

// stubAI answers Analyze with a scripted result.
type stubAI struct {
	out.AIClient
	insights *domain.MessageInsights
	calls    int
}

func (a *stubAI) Analyze(context.Context, string, string) (*domain.MessageInsights, error) {
	a.calls++
	return a.insights, nil
}

// stubProvider applies label deltas in memory, or fails on demand.
type stubProvider struct {
	out.MailProvider

	labels         []string
	modifyErr      error
	modifiedAdd    []string
	modifiedRemove []string
}

func (p *stubProvider) ModifyLabels(_ context.Context, _ *oauth2.Token, _ string, add, remove []string) ([]string, error) {
	if p.modifyErr != nil {
		return nil, p.modifyErr
	}
	p.modifiedAdd = add
	p.modifiedRemove = remove
	p.labels = domain.ApplyLabelDelta(p.labels, add, remove)
	return append([]string{}, p.labels...), nil
}

func (p *stubProvider) EnsureLabel(_ context.Context, _ *oauth2.Token, name string) (*out.ProviderLabel, error) {
	return &out.ProviderLabel{ID: "Label_" + name, Name: name, Type: "user"}, nil
}

type fixture struct {
	svc         *Service
	messageRepo *stubMessageRepo
	provider    *stubProvider
	ai          *stubAI
}

func newFixture(msg *domain.Message, columns map[int64]*domain.Column) *fixture {
	expiry := time.Now().Add(time.Hour)
	mailboxRepo := &stubMailboxRepo{mailbox: &domain.Mailbox{
		ID:          1,
		UserID:      10,
		AccessToken: "access",
		TokenExpiry: &expiry,
	}}
	columnRepo := &stubColumnRepo{columns: columns}
	messageRepo := &stubMessageRepo{msg: msg}
	provider := &stubProvider{labels: append([]string{}, msg.Labels...)}
	ai := &stubAI{}
	tokens := auth.NewTokenService(mailboxRepo, provider, 10*time.Minute)
	columnSvc := column.NewService(columnRepo, mailboxRepo, provider, tokens)
	svc := NewService(messageRepo, mailboxRepo, columnRepo, nil, provider, tokens, columnSvc, ai)
	return &fixture{svc: svc, messageRepo: messageRepo, provider: provider, ai: ai}
}

func inboxMessage() *domain.Message {
	return &domain.Message{
		ID:         100,
		MailboxID:  1,
		ExternalID: "ext-100",
		Labels:     []string{domain.LabelInbox, domain.LabelUnread},
		IsRead:     false,
	}
}

func TestMoveToColumn_ManagedArchivesFromInbox(t *testing.T) {
	target := &domain.Column{ID: 5, MailboxID: 1, Name: "To Do", Kind: domain.ColumnKindManaged, ProviderLabelID: "Label_todo"}
	f := newFixture(inboxMessage(), map[int64]*domain.Column{5: target})

	moved, err := f.svc.MoveToColumn(context.Background(), 10, 100, 5)
	if err != nil {
		t.Fatalf("MoveToColumn() error = %v", err)
	}

	if !domain.HasLabel(moved.Labels, "Label_todo") {
		t.Error("mirror label missing after move")
	}
	if domain.HasLabel(moved.Labels, domain.LabelInbox) {
		t.Error("message still in inbox after moving onto a workflow lane")
	}
	if moved.ColumnID == nil || *moved.ColumnID != 5 {
		t.Errorf("column id = %v, want 5", moved.ColumnID)
	}
	if f.messageRepo.updatedColumn == nil || *f.messageRepo.updatedColumn != 5 {
		t.Errorf("stored column id = %v, want 5", f.messageRepo.updatedColumn)
	}
}

func TestMoveToColumn_ManagedCreatesMissingLabel(t *testing.T) {
	// No ProviderLabelID yet: the move must create the mirror label first
	target := &domain.Column{ID: 5, MailboxID: 1, Name: "To Do", Kind: domain.ColumnKindManaged}
	f := newFixture(inboxMessage(), map[int64]*domain.Column{5: target})

	moved, err := f.svc.MoveToColumn(context.Background(), 10, 100, 5)
	if err != nil {
		t.Fatalf("MoveToColumn() error = %v", err)
	}
	if !domain.HasLabel(moved.Labels, "Label_Mailboard/To Do") {
		t.Errorf("labels = %v, want the freshly created mirror label applied", moved.Labels)
	}
}

func TestMoveToColumn_SmartClearsColumnBinding(t *testing.T) {
	current := &domain.Column{ID: 5, MailboxID: 1, Name: "To Do", Kind: domain.ColumnKindManaged, ProviderLabelID: "Label_todo"}
	target := &domain.Column{ID: 2, MailboxID: 1, Name: "Starred", Kind: domain.ColumnKindSmart, SmartLabel: domain.LabelStarred}

	msg := inboxMessage()
	colID := int64(5)
	msg.ColumnID = &colID
	msg.Labels = []string{"Label_todo", domain.LabelUnread}
	f := newFixture(msg, map[int64]*domain.Column{5: current, 2: target})

	moved, err := f.svc.MoveToColumn(context.Background(), 10, 100, 2)
	if err != nil {
		t.Fatalf("MoveToColumn() error = %v", err)
	}

	if moved.ColumnID != nil {
		t.Errorf("column id = %v, want nil for a smart column", moved.ColumnID)
	}
	if !domain.HasLabel(moved.Labels, domain.LabelStarred) {
		t.Error("smart label missing after move")
	}
	if domain.HasLabel(moved.Labels, "Label_todo") {
		t.Error("old managed mirror label still present")
	}
	if !moved.IsStarred {
		t.Error("starred flag not derived from labels")
	}
}

func TestMoveToColumn_ProviderFailureLeavesLocalState(t *testing.T) {
	target := &domain.Column{ID: 5, MailboxID: 1, Name: "To Do", Kind: domain.ColumnKindManaged, ProviderLabelID: "Label_todo"}
	f := newFixture(inboxMessage(), map[int64]*domain.Column{5: target})
	f.provider.modifyErr = out.NewProviderError("gmail", out.ProviderErrServer, "backend error", nil, true)

	if _, err := f.svc.MoveToColumn(context.Background(), 10, 100, 5); err == nil {
		t.Fatal("MoveToColumn() = nil, want the provider error")
	}
	if f.messageRepo.updateCalls != 0 {
		t.Error("local state written although the provider mutation failed")
	}
}

func TestMoveToColumn_WrongMailbox(t *testing.T) {
	target := &domain.Column{ID: 5, MailboxID: 2, Name: "To Do", Kind: domain.ColumnKindManaged}
	f := newFixture(inboxMessage(), map[int64]*domain.Column{5: target})

	if _, err := f.svc.MoveToColumn(context.Background(), 10, 100, 5); err == nil {
		t.Fatal("MoveToColumn() across mailboxes = nil, want error")
	}
}

func TestUpdateFlags(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	tests := []struct {
		name       string
		isRead     *bool
		isStarred  *bool
		isArchived *bool
		wantAdd    []string
		wantRemove []string
	}{
		{
			name:       "mark read",
			isRead:     boolPtr(true),
			wantRemove: []string{domain.LabelUnread},
		},
		{
			name:    "mark unread",
			isRead:  boolPtr(false),
			wantAdd: []string{domain.LabelUnread},
		},
		{
			name:      "star",
			isStarred: boolPtr(true),
			wantAdd:   []string{domain.LabelStarred},
		},
		{
			name:       "archive",
			isArchived: boolPtr(true),
			wantRemove: []string{domain.LabelInbox},
		},
		{
			name:       "unarchive",
			isArchived: boolPtr(false),
			wantAdd:    []string{domain.LabelInbox},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(inboxMessage(), nil)
			patch := &in.MessagePatch{IsRead: tt.isRead, IsStarred: tt.isStarred, IsArchived: tt.isArchived}
			if err := f.svc.UpdateFlags(context.Background(), 10, 100, patch); err != nil {
				t.Fatalf("UpdateFlags() error = %v", err)
			}
			if !equalStrings(f.provider.modifiedAdd, tt.wantAdd) {
				t.Errorf("added = %v, want %v", f.provider.modifiedAdd, tt.wantAdd)
			}
			if !equalStrings(f.provider.modifiedRemove, tt.wantRemove) {
				t.Errorf("removed = %v, want %v", f.provider.modifiedRemove, tt.wantRemove)
			}
			if f.messageRepo.updateCalls != 1 {
				t.Errorf("UpdateLabels calls = %d, want 1", f.messageRepo.updateCalls)
			}
		})
	}

	t.Run("no-op", func(t *testing.T) {
		f := newFixture(inboxMessage(), nil)
		if err := f.svc.UpdateFlags(context.Background(), 10, 100, &in.MessagePatch{}); err != nil {
			t.Fatalf("UpdateFlags() error = %v", err)
		}
		if f.messageRepo.updateCalls != 0 {
			t.Error("no-op flag update wrote local state")
		}
	})
}

func TestUpdateFlags_TaskWorkflow(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	t.Run("pin is local only", func(t *testing.T) {
		f := newFixture(inboxMessage(), nil)
		err := f.svc.UpdateFlags(context.Background(), 10, 100, &in.MessagePatch{IsPinned: boolPtr(true)})
		if err != nil {
			t.Fatalf("UpdateFlags() error = %v", err)
		}
		if f.messageRepo.workflow == nil || f.messageRepo.workflow.IsPinned == nil || !*f.messageRepo.workflow.IsPinned {
			t.Errorf("workflow patch = %+v, want pinned", f.messageRepo.workflow)
		}
		// Pinning never touches provider labels
		if f.provider.modifiedAdd != nil || f.provider.modifiedRemove != nil {
			t.Errorf("provider labels modified for a pin: add=%v remove=%v", f.provider.modifiedAdd, f.provider.modifiedRemove)
		}
	})

	t.Run("status with deadline", func(t *testing.T) {
		f := newFixture(inboxMessage(), nil)
		status := domain.TaskStatusInProgress
		deadline := time.Now().Add(48 * time.Hour)
		err := f.svc.UpdateFlags(context.Background(), 10, 100, &in.MessagePatch{TaskStatus: &status, TaskDeadline: &deadline})
		if err != nil {
			t.Fatalf("UpdateFlags() error = %v", err)
		}
		w := f.messageRepo.workflow
		if w == nil || w.TaskStatus == nil || *w.TaskStatus != domain.TaskStatusInProgress {
			t.Fatalf("workflow patch = %+v, want in_progress", w)
		}
		if w.TaskDeadline == nil || !w.TaskDeadline.Equal(deadline) {
			t.Errorf("deadline = %v, want %v", w.TaskDeadline, deadline)
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		f := newFixture(inboxMessage(), nil)
		bad := domain.TaskStatus("urgent")
		err := f.svc.UpdateFlags(context.Background(), 10, 100, &in.MessagePatch{TaskStatus: &bad})
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeValidationFailed {
			t.Fatalf("UpdateFlags(bad status) = %v, want validation failure", err)
		}
		if f.messageRepo.workflow != nil {
			t.Error("invalid status reached the store")
		}
	})

	t.Run("flags and workflow combine", func(t *testing.T) {
		f := newFixture(inboxMessage(), nil)
		status := domain.TaskStatusTodo
		err := f.svc.UpdateFlags(context.Background(), 10, 100, &in.MessagePatch{
			IsRead:     boolPtr(true),
			TaskStatus: &status,
		})
		if err != nil {
			t.Fatalf("UpdateFlags() error = %v", err)
		}
		if !equalStrings(f.provider.modifiedRemove, []string{domain.LabelUnread}) {
			t.Errorf("removed = %v, want UNREAD", f.provider.modifiedRemove)
		}
		if f.messageRepo.workflow == nil || f.messageRepo.workflow.TaskStatus == nil || *f.messageRepo.workflow.TaskStatus != domain.TaskStatusTodo {
			t.Errorf("workflow patch = %+v, want todo", f.messageRepo.workflow)
		}
	})
}

func TestSummarize_StoresInsights(t *testing.T) {
	urgency := 7
	msg := inboxMessage()
	msg.BodyText = "Please review the contract by Friday."
	f := newFixture(msg, nil)
	f.ai.insights = &domain.MessageInsights{
		Summary: "Contract review due Friday.",
		Urgency: &urgency,
		ActionItems: []domain.ActionItem{
			{Text: "Review the contract", DueDate: "2026-08-28"},
		},
	}

	summary, err := f.svc.Summarize(context.Background(), 10, 100)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "Contract review due Friday." {
		t.Errorf("summary = %q", summary)
	}
	stored := f.messageRepo.insights
	if stored == nil || stored.Urgency == nil || *stored.Urgency != 7 || len(stored.ActionItems) != 1 {
		t.Errorf("stored insights = %+v, want urgency and action items kept", stored)
	}

	// Cached after the first call
	msg.Summary = summary
	if _, err := f.svc.Summarize(context.Background(), 10, 100); err != nil {
		t.Fatalf("second Summarize() error = %v", err)
	}
	if f.ai.calls != 1 {
		t.Errorf("Analyze calls = %d, want 1", f.ai.calls)
	}
}

func TestDelete_TrashesAtProviderFirst(t *testing.T) {
	f := newFixture(inboxMessage(), nil)

	if err := f.svc.Delete(context.Background(), 10, 100); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !equalStrings(f.provider.modifiedAdd, []string{domain.LabelTrash}) {
		t.Errorf("added = %v, want TRASH", f.provider.modifiedAdd)
	}
	if !f.messageRepo.softDeleted {
		t.Error("message not soft-deleted locally")
	}

	f = newFixture(inboxMessage(), nil)
	f.provider.modifyErr = errors.New("backend down")
	if err := f.svc.Delete(context.Background(), 10, 100); err == nil {
		t.Fatal("Delete() = nil, want provider error")
	}
	if f.messageRepo.softDeleted {
		t.Error("soft-deleted locally although the provider call failed")
	}
}

func TestSnooze(t *testing.T) {
	f := newFixture(inboxMessage(), nil)

	if err := f.svc.Snooze(context.Background(), 10, 100, time.Now().Add(-time.Hour)); err == nil {
		t.Error("Snooze() in the past = nil, want error")
	}
	if f.messageRepo.snoozedUntil != nil {
		t.Error("past snooze was stored")
	}

	until := time.Now().Add(time.Hour)
	if err := f.svc.Snooze(context.Background(), 10, 100, until); err != nil {
		t.Fatalf("Snooze() error = %v", err)
	}
	if f.messageRepo.snoozedUntil == nil || !f.messageRepo.snoozedUntil.Equal(until) {
		t.Errorf("snoozed until = %v, want %v", f.messageRepo.snoozedUntil, until)
	}

	if err := f.svc.Unsnooze(context.Background(), 10, 100); err != nil {
		t.Fatalf("Unsnooze() error = %v", err)
	}
	if f.messageRepo.snoozedUntil != nil {
		t.Error("snooze not cleared")
	}
}

func TestOwnershipChecks(t *testing.T) {
	f := newFixture(inboxMessage(), nil)

	// A foreign message must look exactly like a missing one
	_, err := f.svc.Get(context.Background(), 99, 100)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Errorf("Get() by non-owner = %v, want not found", err)
	}

	err = f.svc.Delete(context.Background(), 99, 100)
	appErr = apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Errorf("Delete() by non-owner = %v, want not found", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
