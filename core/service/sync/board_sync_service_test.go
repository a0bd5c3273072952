package sync

import (
	"context"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/pkg/apperr"
)

// fakeMailboxRepo keeps a single mailbox in memory and records state
// transitions the way the SQL adapter would apply them.
type fakeMailboxRepo struct {
	mailbox *domain.Mailbox

	beginCalls    int
	finishCursor  string
	finishCalls   int
	failErr       string
	failCalls     int
	retryErr      string
	retryCount    int
	nextRetryAt   time.Time
	retryCalls    int
	clearedCursor bool
	counterTotal  int
	counterUnread int
	counterCalls  int
	resetCalls    int
	stuck         []*domain.Mailbox
}

func (r *fakeMailboxRepo) Create(_ context.Context, m *domain.Mailbox) (*domain.Mailbox, error) {
	return m, nil
}

func (r *fakeMailboxRepo) GetByID(_ context.Context, id int64) (*domain.Mailbox, error) {
	if r.mailbox == nil || r.mailbox.ID != id {
		return nil, apperr.NotFound("mailbox")
	}
	cp := *r.mailbox
	return &cp, nil
}

func (r *fakeMailboxRepo) GetByAddress(context.Context, int64, string) (*domain.Mailbox, error) {
	return nil, apperr.NotFound("mailbox")
}

func (r *fakeMailboxRepo) ListByUser(context.Context, int64) ([]*domain.Mailbox, error) {
	return []*domain.Mailbox{r.mailbox}, nil
}

func (r *fakeMailboxRepo) ListAll(context.Context) ([]*domain.Mailbox, error) {
	return []*domain.Mailbox{r.mailbox}, nil
}

func (r *fakeMailboxRepo) Delete(context.Context, int64) error { return nil }

func (r *fakeMailboxRepo) UpdateTokens(_ context.Context, _ int64, access, refresh string, expiry *time.Time) error {
	r.mailbox.AccessToken = access
	if refresh != "" {
		r.mailbox.RefreshToken = refresh
	}
	r.mailbox.TokenExpiry = expiry
	return nil
}

func (r *fakeMailboxRepo) ExpiringTokens(context.Context, time.Time) ([]*domain.Mailbox, error) {
	return nil, nil
}

func (r *fakeMailboxRepo) BeginSync(_ context.Context, _ int64, phase domain.SyncPhase, startedAt time.Time) (bool, error) {
	r.beginCalls++
	switch r.mailbox.SyncStatus {
	case domain.SyncStatusIdle, domain.SyncStatusError, domain.SyncStatusRetryScheduled:
		r.mailbox.SyncStatus = domain.SyncStatusSyncing
		r.mailbox.SyncPhase = phase
		r.mailbox.SyncStartedAt = &startedAt
		return true, nil
	default:
		return false, nil
	}
}

func (r *fakeMailboxRepo) FinishSync(_ context.Context, _ int64, cursor string, syncedAt time.Time) error {
	r.finishCalls++
	r.finishCursor = cursor
	r.mailbox.SyncStatus = domain.SyncStatusIdle
	r.mailbox.HistoryCursor = cursor
	r.mailbox.LastSyncAt = &syncedAt
	r.mailbox.RetryCount = 0
	return nil
}

func (r *fakeMailboxRepo) FailSync(_ context.Context, _ int64, syncErr string) error {
	r.failCalls++
	r.failErr = syncErr
	r.mailbox.SyncStatus = domain.SyncStatusError
	return nil
}

func (r *fakeMailboxRepo) ScheduleRetry(_ context.Context, _ int64, syncErr string, retryCount int, nextRetryAt time.Time) error {
	r.retryCalls++
	r.retryErr = syncErr
	r.retryCount = retryCount
	r.nextRetryAt = nextRetryAt
	r.mailbox.SyncStatus = domain.SyncStatusRetryScheduled
	r.mailbox.RetryCount = retryCount
	return nil
}

func (r *fakeMailboxRepo) ClearCursor(context.Context, int64) error {
	r.clearedCursor = true
	r.mailbox.HistoryCursor = ""
	return nil
}

func (r *fakeMailboxRepo) RetryDue(context.Context, time.Time) ([]*domain.Mailbox, error) {
	return nil, nil
}

func (r *fakeMailboxRepo) StuckSyncing(context.Context, time.Time) ([]*domain.Mailbox, error) {
	return r.stuck, nil
}

func (r *fakeMailboxRepo) ResetSync(context.Context, int64) error {
	r.resetCalls++
	r.mailbox.SyncStatus = domain.SyncStatusIdle
	r.mailbox.SyncPhase = ""
	r.mailbox.SyncStartedAt = nil
	return nil
}

func (r *fakeMailboxRepo) UpdateCounters(_ context.Context, _ int64, total, unread int) error {
	r.counterCalls++
	r.counterTotal = total
	r.counterUnread = unread
	return nil
}

// fakeMessageRepo records the sync-path writes.
type fakeMessageRepo struct {
	out.MessageRepository

	upserted   []*domain.Message
	stored     map[string]*domain.Message
	deltas     map[string][]string
	deltaCols  map[string]*int64
	deletedIDs []string
	total      int
	unread     int
}

func (r *fakeMessageRepo) BulkUpsert(_ context.Context, messages []*domain.Message) (int, error) {
	for i, m := range messages {
		m.ID = int64(len(r.upserted) + i + 1)
	}
	r.upserted = append(r.upserted, messages...)
	return len(messages), nil
}

func (r *fakeMessageRepo) GetByExternalIDs(_ context.Context, _ int64, externalIDs []string) (map[string]*domain.Message, error) {
	result := make(map[string]*domain.Message)
	for _, id := range externalIDs {
		if m, ok := r.stored[id]; ok {
			result[id] = m
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) ApplyLabelDelta(_ context.Context, _ int64, externalID string, labels []string, columnID *int64) error {
	if r.deltas == nil {
		r.deltas = make(map[string][]string)
		r.deltaCols = make(map[string]*int64)
	}
	r.deltas[externalID] = labels
	r.deltaCols[externalID] = columnID
	return nil
}

func (r *fakeMessageRepo) SoftDeleteByExternalIDs(_ context.Context, _ int64, externalIDs []string) (int, error) {
	r.deletedIDs = append(r.deletedIDs, externalIDs...)
	return len(externalIDs), nil
}

func (r *fakeMessageRepo) CountByMailbox(context.Context, int64) (int, int, error) {
	return r.total, r.unread, nil
}

// fakeAttachmentRepo drops attachment metadata.
type fakeAttachmentRepo struct{}

func (fakeAttachmentRepo) BulkUpsert(context.Context, int64, []*domain.Attachment) error {
	return nil
}

func (fakeAttachmentRepo) ListByMessage(context.Context, int64) ([]*domain.Attachment, error) {
	return nil, nil
}

func (fakeAttachmentRepo) GetByID(context.Context, int64) (*domain.Attachment, error) {
	return nil, apperr.NotFound("attachment")
}

// fakeColumnRepo serves a fixed column list.
type fakeColumnRepo struct {
	out.ColumnRepository
	columns []*domain.Column
}

func (r *fakeColumnRepo) ListByMailbox(context.Context, int64) ([]*domain.Column, error) {
	return r.columns, nil
}

// fakeProvider scripts provider responses and records call order.
type fakeProvider struct {
	profile     *out.ProviderProfile
	pages       []*out.ProviderListResult
	messages    map[string]*out.ProviderMessage
	history     *out.ProviderHistoryResult
	historyErr  error
	listErr     error
	callOrder   []string
	listOpts    []*out.ProviderListOptions
	pagesServed int
}

func (p *fakeProvider) GetAuthURL(string) string { return "" }

func (p *fakeProvider) ExchangeCode(context.Context, string) (*oauth2.Token, error) {
	return nil, nil
}

func (p *fakeProvider) RefreshTokens(_ context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return token, nil
}

func (p *fakeProvider) GetProfile(context.Context, *oauth2.Token) (*out.ProviderProfile, error) {
	p.callOrder = append(p.callOrder, "GetProfile")
	return p.profile, nil
}

func (p *fakeProvider) ListMessages(_ context.Context, _ *oauth2.Token, opts *out.ProviderListOptions) (*out.ProviderListResult, error) {
	p.callOrder = append(p.callOrder, "ListMessages")
	p.listOpts = append(p.listOpts, opts)
	if p.listErr != nil {
		return nil, p.listErr
	}
	if p.pagesServed >= len(p.pages) {
		return &out.ProviderListResult{}, nil
	}
	page := p.pages[p.pagesServed]
	p.pagesServed++
	return page, nil
}

func (p *fakeProvider) GetMessage(_ context.Context, _ *oauth2.Token, externalID string) (*out.ProviderMessage, error) {
	if m, ok := p.messages[externalID]; ok {
		return m, nil
	}
	return nil, out.NewProviderError("gmail", out.ProviderErrNotFound, "message not found", nil, false)
}

func (p *fakeProvider) GetMessages(_ context.Context, _ *oauth2.Token, externalIDs []string) ([]*out.ProviderMessage, error) {
	p.callOrder = append(p.callOrder, "GetMessages")
	result := make([]*out.ProviderMessage, 0, len(externalIDs))
	for _, id := range externalIDs {
		if m, ok := p.messages[id]; ok {
			result = append(result, m)
		}
	}
	return result, nil
}

func (p *fakeProvider) GetHistoryChanges(context.Context, *oauth2.Token, string) (*out.ProviderHistoryResult, error) {
	p.callOrder = append(p.callOrder, "GetHistoryChanges")
	if p.historyErr != nil {
		return nil, p.historyErr
	}
	return p.history, nil
}

func (p *fakeProvider) ModifyLabels(context.Context, *oauth2.Token, string, []string, []string) ([]string, error) {
	return nil, nil
}

func (p *fakeProvider) SendMessage(context.Context, *oauth2.Token, *domain.OutgoingMessage) (*out.ProviderSendResult, error) {
	return nil, nil
}

func (p *fakeProvider) ListLabels(context.Context, *oauth2.Token) ([]*out.ProviderLabel, error) {
	return nil, nil
}

func (p *fakeProvider) EnsureLabel(_ context.Context, _ *oauth2.Token, name string) (*out.ProviderLabel, error) {
	return &out.ProviderLabel{ID: "Label_" + name, Name: name, Type: "user"}, nil
}

func (p *fakeProvider) GetAttachment(context.Context, *oauth2.Token, string, string) ([]byte, error) {
	return nil, nil
}

func (p *fakeProvider) ProviderType() domain.Provider { return domain.ProviderGmail }

func testMailbox(status domain.SyncStatus, cursor string) *domain.Mailbox {
	expiry := time.Now().Add(time.Hour)
	return &domain.Mailbox{
		ID:            1,
		UserID:        1,
		Address:       "user@example.com",
		Provider:      domain.ProviderGmail,
		SyncStatus:    status,
		HistoryCursor: cursor,
		AccessToken:   "access",
		RefreshToken:  "refresh",
		TokenExpiry:   &expiry,
	}
}

func newTestService(mailboxRepo *fakeMailboxRepo, messageRepo *fakeMessageRepo, columnRepo *fakeColumnRepo, provider *fakeProvider) *SyncService {
	tokens := auth.NewTokenService(mailboxRepo, provider, 10*time.Minute)
	return NewSyncService(mailboxRepo, messageRepo, fakeAttachmentRepo{}, columnRepo, provider, tokens, 100, 200)
}

func TestFullSync_CapturesCursorBeforePaging(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "")}
	messageRepo := &fakeMessageRepo{total: 2, unread: 1}
	provider := &fakeProvider{
		profile: &out.ProviderProfile{Address: "user@example.com", HistoryCursor: "cursor-42"},
		pages: []*out.ProviderListResult{
			{MessageIDs: []string{"m1"}, NextPageToken: "page2"},
			{MessageIDs: []string{"m2"}},
		},
		messages: map[string]*out.ProviderMessage{
			"m1": {ExternalID: "m1", Subject: "first", Labels: []string{domain.LabelInbox, domain.LabelUnread}, InternalDate: time.Now()},
			"m2": {ExternalID: "m2", Subject: "second", Labels: []string{domain.LabelInbox}, InternalDate: time.Now()},
		},
	}
	svc := newTestService(mailboxRepo, messageRepo, &fakeColumnRepo{}, provider)

	if err := svc.FullSync(context.Background(), 1); err != nil {
		t.Fatalf("FullSync() error = %v", err)
	}

	if len(provider.callOrder) == 0 || provider.callOrder[0] != "GetProfile" {
		t.Errorf("call order = %v, want GetProfile first", provider.callOrder)
	}
	if mailboxRepo.finishCursor != "cursor-42" {
		t.Errorf("finish cursor = %q, want %q", mailboxRepo.finishCursor, "cursor-42")
	}
	if len(messageRepo.upserted) != 2 {
		t.Errorf("upserted %d messages, want 2", len(messageRepo.upserted))
	}
	if mailboxRepo.counterTotal != 2 || mailboxRepo.counterUnread != 1 {
		t.Errorf("counters = (%d, %d), want (2, 1)", mailboxRepo.counterTotal, mailboxRepo.counterUnread)
	}
	if mailboxRepo.mailbox.SyncStatus != domain.SyncStatusIdle {
		t.Errorf("status = %s, want idle", mailboxRepo.mailbox.SyncStatus)
	}

	// Flags must be derived from labels, not defaulted
	for _, m := range messageRepo.upserted {
		if m.ExternalID == "m1" && m.IsRead {
			t.Error("m1 carries UNREAD but was stored read")
		}
		if m.ExternalID == "m2" && !m.IsRead {
			t.Error("m2 has no UNREAD label but was stored unread")
		}
	}
}

func TestFullSync_SingleFlight(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusSyncing, "")}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, &fakeProvider{})

	err := svc.FullSync(context.Background(), 1)
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeSyncInProgress {
		t.Fatalf("FullSync() on busy mailbox = %v, want %s", err, apperr.CodeSyncInProgress)
	}
}

func TestFullSync_InboxScopeAndMessageCap(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "")}
	messageRepo := &fakeMessageRepo{}
	provider := &fakeProvider{
		profile: &out.ProviderProfile{Address: "user@example.com", HistoryCursor: "c"},
		pages: []*out.ProviderListResult{
			{MessageIDs: []string{"m1", "m2"}, NextPageToken: "page2"},
			{MessageIDs: []string{"m3"}, NextPageToken: "page3"},
			{MessageIDs: []string{"m4"}},
		},
		messages: map[string]*out.ProviderMessage{
			"m1": {ExternalID: "m1", Labels: []string{domain.LabelInbox}, InternalDate: time.Now()},
			"m2": {ExternalID: "m2", Labels: []string{domain.LabelInbox}, InternalDate: time.Now()},
			"m3": {ExternalID: "m3", Labels: []string{domain.LabelInbox}, InternalDate: time.Now()},
			"m4": {ExternalID: "m4", Labels: []string{domain.LabelInbox}, InternalDate: time.Now()},
		},
	}
	tokens := auth.NewTokenService(mailboxRepo, provider, 10*time.Minute)
	svc := NewSyncService(mailboxRepo, messageRepo, fakeAttachmentRepo{}, &fakeColumnRepo{}, provider, tokens, 100, 3)

	if err := svc.FullSync(context.Background(), 1); err != nil {
		t.Fatalf("FullSync() error = %v", err)
	}

	if len(provider.listOpts) != 2 {
		t.Fatalf("ListMessages calls = %d, want 2 (the cap stops paging)", len(provider.listOpts))
	}
	for i, opts := range provider.listOpts {
		if len(opts.LabelIDs) != 1 || opts.LabelIDs[0] != domain.LabelInbox {
			t.Errorf("page %d labels = %v, want just INBOX", i, opts.LabelIDs)
		}
	}
	if provider.listOpts[0].MaxResults != 3 {
		t.Errorf("first page size = %d, want 3", provider.listOpts[0].MaxResults)
	}
	if provider.listOpts[1].MaxResults != 1 {
		t.Errorf("second page size = %d, want the remaining 1", provider.listOpts[1].MaxResults)
	}
	if len(messageRepo.upserted) != 3 {
		t.Errorf("upserted %d messages, want the cap of 3", len(messageRepo.upserted))
	}
}

func TestRunWatchdog_ResetsStuckToIdle(t *testing.T) {
	mb := testMailbox(domain.SyncStatusSyncing, "c1")
	started := time.Now().Add(-time.Hour)
	mb.SyncStartedAt = &started
	mailboxRepo := &fakeMailboxRepo{mailbox: mb, stuck: []*domain.Mailbox{mb}}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, &fakeProvider{})

	if err := svc.RunWatchdog(context.Background(), 10*time.Minute); err != nil {
		t.Fatalf("RunWatchdog() error = %v", err)
	}
	if mailboxRepo.resetCalls != 1 {
		t.Fatalf("ResetSync calls = %d, want 1", mailboxRepo.resetCalls)
	}
	// An abandoned worker is not a sync failure
	if mailboxRepo.failCalls != 0 {
		t.Errorf("FailSync calls = %d, want 0", mailboxRepo.failCalls)
	}
	if mb.SyncStatus != domain.SyncStatusIdle {
		t.Errorf("status = %s, want idle", mb.SyncStatus)
	}
}

func TestIncrementalSync_NoCursorFallsBackToFull(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "")}
	provider := &fakeProvider{
		profile: &out.ProviderProfile{HistoryCursor: "fresh"},
	}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, provider)

	if err := svc.IncrementalSync(context.Background(), 1); err != nil {
		t.Fatalf("IncrementalSync() error = %v", err)
	}
	if len(provider.callOrder) == 0 || provider.callOrder[0] != "GetProfile" {
		t.Errorf("call order = %v, want a full sync walk", provider.callOrder)
	}
	if mailboxRepo.finishCursor != "fresh" {
		t.Errorf("finish cursor = %q, want %q", mailboxRepo.finishCursor, "fresh")
	}
}

func TestIncrementalSync_StaleCursorResyncs(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "old-cursor")}
	provider := &fakeProvider{
		profile:    &out.ProviderProfile{HistoryCursor: "new-cursor"},
		historyErr: out.NewProviderError("gmail", out.ProviderErrStaleCursor, "history expired", nil, false),
	}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, provider)

	if err := svc.IncrementalSync(context.Background(), 1); err != nil {
		t.Fatalf("IncrementalSync() error = %v", err)
	}
	if !mailboxRepo.clearedCursor {
		t.Error("stale cursor was not cleared")
	}
	if mailboxRepo.finishCursor != "new-cursor" {
		t.Errorf("finish cursor = %q, want %q", mailboxRepo.finishCursor, "new-cursor")
	}
	// A stale cursor must not count as a failure
	if mailboxRepo.failCalls != 0 || mailboxRepo.retryCalls != 0 {
		t.Error("stale cursor fallback recorded a sync failure")
	}
}

func TestIncrementalSync_AppliesHistory(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "c1")}
	colID := int64(7)
	columnRepo := &fakeColumnRepo{columns: []*domain.Column{
		{ID: colID, Kind: domain.ColumnKindManaged, Name: "To Do", ProviderLabelID: "Label_todo"},
	}}
	messageRepo := &fakeMessageRepo{
		stored: map[string]*domain.Message{
			"m1": {ExternalID: "m1", Labels: []string{domain.LabelInbox, domain.LabelUnread}},
		},
	}
	provider := &fakeProvider{
		history: &out.ProviderHistoryResult{
			AddedMessageIDs:   []string{"m2"},
			RemovedMessageIDs: []string{"m3"},
			LabelChanges: map[string]out.ProviderLabelDelta{
				"m1": {Added: []string{"Label_todo"}, Removed: []string{domain.LabelUnread}},
			},
			NewCursor: "c2",
		},
		messages: map[string]*out.ProviderMessage{
			"m2": {ExternalID: "m2", Subject: "new", Labels: []string{domain.LabelInbox}, InternalDate: time.Now()},
		},
	}
	svc := newTestService(mailboxRepo, messageRepo, columnRepo, provider)

	if err := svc.IncrementalSync(context.Background(), 1); err != nil {
		t.Fatalf("IncrementalSync() error = %v", err)
	}

	if len(messageRepo.upserted) != 1 || messageRepo.upserted[0].ExternalID != "m2" {
		t.Errorf("upserted = %v, want just m2", messageRepo.upserted)
	}
	if len(messageRepo.deletedIDs) != 1 || messageRepo.deletedIDs[0] != "m3" {
		t.Errorf("deleted = %v, want just m3", messageRepo.deletedIDs)
	}
	labels := messageRepo.deltas["m1"]
	if !domain.HasLabel(labels, "Label_todo") || domain.HasLabel(labels, domain.LabelUnread) {
		t.Errorf("m1 labels after delta = %v", labels)
	}
	if got := messageRepo.deltaCols["m1"]; got == nil || *got != colID {
		t.Errorf("m1 column = %v, want %d", got, colID)
	}
	if mailboxRepo.finishCursor != "c2" {
		t.Errorf("finish cursor = %q, want %q", mailboxRepo.finishCursor, "c2")
	}
}

func TestIncrementalSync_KeepsCursorWhenHistoryEmpty(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "c1")}
	provider := &fakeProvider{history: &out.ProviderHistoryResult{}}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, provider)

	if err := svc.IncrementalSync(context.Background(), 1); err != nil {
		t.Fatalf("IncrementalSync() error = %v", err)
	}
	if mailboxRepo.finishCursor != "c1" {
		t.Errorf("finish cursor = %q, want the old cursor kept", mailboxRepo.finishCursor)
	}
}

func TestFullSync_RetryableFailureSchedulesBackoff(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "")}
	provider := &fakeProvider{
		profile: &out.ProviderProfile{HistoryCursor: "c"},
		listErr: out.NewProviderError("gmail", out.ProviderErrRateLimit, "quota exceeded", nil, true),
	}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, provider)

	before := time.Now()
	err := svc.FullSync(context.Background(), 1)
	if err == nil {
		t.Fatal("FullSync() = nil, want the provider error surfaced")
	}
	if mailboxRepo.retryCalls != 1 {
		t.Fatalf("ScheduleRetry calls = %d, want 1", mailboxRepo.retryCalls)
	}
	if mailboxRepo.retryCount != 1 {
		t.Errorf("retry count = %d, want 1", mailboxRepo.retryCount)
	}
	wantDelay := domain.GetRetryDelay(0)
	gotDelay := mailboxRepo.nextRetryAt.Sub(before)
	if gotDelay < wantDelay-time.Second || gotDelay > wantDelay+5*time.Second {
		t.Errorf("backoff = %v, want about %v", gotDelay, wantDelay)
	}
}

func TestFullSync_ExhaustedRetriesFail(t *testing.T) {
	mb := testMailbox(domain.SyncStatusIdle, "")
	mb.RetryCount = domain.MaxSyncRetries
	mailboxRepo := &fakeMailboxRepo{mailbox: mb}
	provider := &fakeProvider{
		profile: &out.ProviderProfile{HistoryCursor: "c"},
		listErr: out.NewProviderError("gmail", out.ProviderErrRateLimit, "quota exceeded", nil, true),
	}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, provider)

	if err := svc.FullSync(context.Background(), 1); err == nil {
		t.Fatal("FullSync() = nil, want error")
	}
	if mailboxRepo.retryCalls != 0 {
		t.Error("retry scheduled past the cap")
	}
	if mailboxRepo.failCalls != 1 {
		t.Errorf("FailSync calls = %d, want 1", mailboxRepo.failCalls)
	}
}

func TestFullSync_NonRetryableFailureFails(t *testing.T) {
	mailboxRepo := &fakeMailboxRepo{mailbox: testMailbox(domain.SyncStatusIdle, "")}
	provider := &fakeProvider{
		profile: &out.ProviderProfile{HistoryCursor: "c"},
		listErr: out.NewProviderError("gmail", out.ProviderErrAuth, "invalid grant", nil, false),
	}
	svc := newTestService(mailboxRepo, &fakeMessageRepo{}, &fakeColumnRepo{}, provider)

	if err := svc.FullSync(context.Background(), 1); err == nil {
		t.Fatal("FullSync() = nil, want error")
	}
	if mailboxRepo.failCalls != 1 || mailboxRepo.retryCalls != 0 {
		t.Errorf("fail/retry calls = %d/%d, want 1/0", mailboxRepo.failCalls, mailboxRepo.retryCalls)
	}
	if mailboxRepo.mailbox.SyncStatus != domain.SyncStatusError {
		t.Errorf("status = %s, want error", mailboxRepo.mailbox.SyncStatus)
	}
}

func TestResolveColumn(t *testing.T) {
	index := map[string]int64{"Label_todo": 7}

	if got := resolveColumn([]string{domain.LabelInbox}, index); got != nil {
		t.Errorf("resolveColumn without managed label = %v, want nil", got)
	}
	if got := resolveColumn([]string{domain.LabelInbox, "Label_todo"}, index); got == nil || *got != 7 {
		t.Errorf("resolveColumn with managed label = %v, want 7", got)
	}
}
