// Package sync implements the mailbox sync state machine: full sync,
// incremental history sync, retry backoff and the stuck-sync watchdog.
package sync

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"
)

const (
	defaultPageSize    = 100
	defaultMaxMessages = 200
)

// SyncService coordinates mailbox synchronization with the provider.
// BeginSync on the repository is the single-flight guard: at most one
// sync runs per mailbox at any time.
type SyncService struct {
	mailboxRepo    out.MailboxRepository
	messageRepo    out.MessageRepository
	attachmentRepo out.AttachmentRepository
	columnRepo     out.ColumnRepository
	provider       out.MailProvider
	tokens         *auth.TokenService

	pageSize    int64
	maxMessages int
}

// NewSyncService creates a new SyncService.
func NewSyncService(
	mailboxRepo out.MailboxRepository,
	messageRepo out.MessageRepository,
	attachmentRepo out.AttachmentRepository,
	columnRepo out.ColumnRepository,
	provider out.MailProvider,
	tokens *auth.TokenService,
	pageSize int,
	maxMessages int,
) *SyncService {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &SyncService{
		mailboxRepo:    mailboxRepo,
		messageRepo:    messageRepo,
		attachmentRepo: attachmentRepo,
		columnRepo:     columnRepo,
		provider:       provider,
		tokens:         tokens,
		pageSize:       int64(pageSize),
		maxMessages:    maxMessages,
	}
}

// FullSync replaces the local state of a mailbox with a complete
// provider snapshot and records a fresh history cursor.
func (s *SyncService) FullSync(ctx context.Context, mailboxID int64) error {
	mailbox, err := s.mailboxRepo.GetByID(ctx, mailboxID)
	if err != nil {
		return err
	}

	ok, err := s.mailboxRepo.BeginSync(ctx, mailboxID, domain.SyncPhaseFull, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.SyncInProgress(mailboxID)
	}

	token, err := s.tokens.Token(ctx, mailbox)
	if err != nil {
		return s.failOrRetry(ctx, mailbox, err)
	}

	if err := s.runFull(ctx, mailbox, token); err != nil {
		return s.failOrRetry(ctx, mailbox, err)
	}
	return nil
}

// runFull executes the full sync body. The caller must already hold
// the syncing state.
func (s *SyncService) runFull(ctx context.Context, mailbox *domain.Mailbox, token *oauth2.Token) error {
	start := time.Now()
	log := logger.WithMailbox(mailbox.ID)
	log.Info("Full sync started")

	// The cursor is captured before the first page. Anything that
	// changes while we page is replayed by the next incremental sync
	// instead of being lost.
	profile, err := s.provider.GetProfile(ctx, token)
	if err != nil {
		return err
	}

	columnByLabel, err := s.managedColumnIndex(ctx, mailbox.ID)
	if err != nil {
		return err
	}

	// A full sync pulls only inbox-labeled messages, capped at
	// maxMessages. Older mail arrives through incremental history
	// replay.
	synced := 0
	pageToken := ""
	for synced < s.maxMessages {
		pageSize := s.pageSize
		if remaining := int64(s.maxMessages - synced); remaining < pageSize {
			pageSize = remaining
		}
		page, err := s.provider.ListMessages(ctx, token, &out.ProviderListOptions{
			LabelIDs:   []string{domain.LabelInbox},
			PageToken:  pageToken,
			MaxResults: pageSize,
		})
		if err != nil {
			return err
		}
		if len(page.MessageIDs) > 0 {
			n, err := s.fetchAndStore(ctx, mailbox, token, page.MessageIDs, columnByLabel)
			if err != nil {
				return err
			}
			synced += n
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if err := s.recomputeCounters(ctx, mailbox.ID); err != nil {
		return err
	}
	if err := s.mailboxRepo.FinishSync(ctx, mailbox.ID, profile.HistoryCursor, time.Now()); err != nil {
		return err
	}

	log.WithField("messages", synced).WithDuration(time.Since(start)).Info("Full sync complete")
	return nil
}

// IncrementalSync replays provider history since the stored cursor. A
// mailbox without a cursor falls back to a full sync, as does one
// whose cursor the provider has expired.
func (s *SyncService) IncrementalSync(ctx context.Context, mailboxID int64) error {
	mailbox, err := s.mailboxRepo.GetByID(ctx, mailboxID)
	if err != nil {
		return err
	}
	if mailbox.HistoryCursor == "" {
		return s.FullSync(ctx, mailboxID)
	}

	ok, err := s.mailboxRepo.BeginSync(ctx, mailboxID, domain.SyncPhaseIncremental, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.SyncInProgress(mailboxID)
	}

	token, err := s.tokens.Token(ctx, mailbox)
	if err != nil {
		return s.failOrRetry(ctx, mailbox, err)
	}

	if err := s.runIncremental(ctx, mailbox, token); err != nil {
		return s.failOrRetry(ctx, mailbox, err)
	}
	return nil
}

func (s *SyncService) runIncremental(ctx context.Context, mailbox *domain.Mailbox, token *oauth2.Token) error {
	start := time.Now()
	log := logger.WithMailbox(mailbox.ID)

	history, err := s.provider.GetHistoryChanges(ctx, token, mailbox.HistoryCursor)
	if err != nil {
		if out.IsStaleCursor(err) {
			log.Warn("History cursor expired, falling back to full sync")
			if err := s.mailboxRepo.ClearCursor(ctx, mailbox.ID); err != nil {
				return err
			}
			return s.runFull(ctx, mailbox, token)
		}
		return err
	}

	columnByLabel, err := s.managedColumnIndex(ctx, mailbox.ID)
	if err != nil {
		return err
	}

	added := 0
	if len(history.AddedMessageIDs) > 0 {
		added, err = s.fetchAndStore(ctx, mailbox, token, history.AddedMessageIDs, columnByLabel)
		if err != nil {
			return err
		}
	}

	if err := s.applyLabelChanges(ctx, mailbox.ID, history.LabelChanges, columnByLabel); err != nil {
		return err
	}

	removed := 0
	if len(history.RemovedMessageIDs) > 0 {
		removed, err = s.messageRepo.SoftDeleteByExternalIDs(ctx, mailbox.ID, history.RemovedMessageIDs)
		if err != nil {
			return err
		}
	}

	if err := s.recomputeCounters(ctx, mailbox.ID); err != nil {
		return err
	}

	cursor := history.NewCursor
	if cursor == "" {
		cursor = mailbox.HistoryCursor
	}
	if err := s.mailboxRepo.FinishSync(ctx, mailbox.ID, cursor, time.Now()); err != nil {
		return err
	}

	if added > 0 || removed > 0 || len(history.LabelChanges) > 0 {
		log.WithFields(map[string]any{
			"added":   added,
			"removed": removed,
			"changed": len(history.LabelChanges),
		}).WithDuration(time.Since(start)).Info("Incremental sync complete")
	}
	return nil
}

// applyLabelChanges replays net label deltas onto stored messages.
// Messages we do not have locally are skipped; they were either purged
// or will arrive with a later add.
func (s *SyncService) applyLabelChanges(ctx context.Context, mailboxID int64, changes map[string]out.ProviderLabelDelta, columnByLabel map[string]int64) error {
	if len(changes) == 0 {
		return nil
	}

	ids := make([]string, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	stored, err := s.messageRepo.GetByExternalIDs(ctx, mailboxID, ids)
	if err != nil {
		return err
	}

	for externalID, delta := range changes {
		msg, ok := stored[externalID]
		if !ok {
			continue
		}
		labels := domain.ApplyLabelDelta(msg.Labels, delta.Added, delta.Removed)
		columnID := resolveColumn(labels, columnByLabel)
		if err := s.messageRepo.ApplyLabelDelta(ctx, mailboxID, externalID, labels, columnID); err != nil {
			return err
		}
	}
	return nil
}

// fetchAndStore pulls full messages for the given ids and upserts them
// with their attachment metadata.
func (s *SyncService) fetchAndStore(ctx context.Context, mailbox *domain.Mailbox, token *oauth2.Token, externalIDs []string, columnByLabel map[string]int64) (int, error) {
	fetched, err := s.provider.GetMessages(ctx, token, externalIDs)
	if err != nil {
		return 0, err
	}

	messages := make([]*domain.Message, 0, len(fetched))
	for _, pm := range fetched {
		messages = append(messages, messageFromProvider(mailbox.ID, pm, columnByLabel))
	}

	n, err := s.messageRepo.BulkUpsert(ctx, messages)
	if err != nil {
		return 0, err
	}

	for i, pm := range fetched {
		if len(pm.Attachments) == 0 {
			continue
		}
		attachments := make([]*domain.Attachment, len(pm.Attachments))
		for j, pa := range pm.Attachments {
			attachments[j] = &domain.Attachment{
				ExternalID: pa.AttachmentID,
				Filename:   pa.Filename,
				MimeType:   pa.MimeType,
				Size:       pa.Size,
			}
		}
		if err := s.attachmentRepo.BulkUpsert(ctx, messages[i].ID, attachments); err != nil {
			logger.WithMailbox(mailbox.ID).WithField("message", pm.ExternalID).WithError(err).
				Warn("Failed to store attachment metadata")
		}
	}

	return n, nil
}

// RunRetries kicks off syncs for mailboxes whose backoff has elapsed.
func (s *SyncService) RunRetries(ctx context.Context) error {
	due, err := s.mailboxRepo.RetryDue(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, mailbox := range due {
		logger.WithMailbox(mailbox.ID).WithField("retry", mailbox.RetryCount).Info("Retrying sync")
		var syncErr error
		if mailbox.HistoryCursor == "" {
			syncErr = s.FullSync(ctx, mailbox.ID)
		} else {
			syncErr = s.IncrementalSync(ctx, mailbox.ID)
		}
		if syncErr != nil {
			logger.WithMailbox(mailbox.ID).WithError(syncErr).Warn("Retry sync failed")
		}
	}
	return nil
}

// RunWatchdog resets mailboxes stuck in syncing longer than the
// cutoff, usually after a crash mid-sync. They go back to idle, not
// error, and the next scheduled sync picks them up.
func (s *SyncService) RunWatchdog(ctx context.Context, cutoff time.Duration) error {
	stuck, err := s.mailboxRepo.StuckSyncing(ctx, time.Now().Add(-cutoff))
	if err != nil {
		return err
	}

	for _, mailbox := range stuck {
		logger.WithMailbox(mailbox.ID).Warn("Sync stuck past watchdog cutoff, resetting to idle")
		if err := s.mailboxRepo.ResetSync(ctx, mailbox.ID); err != nil {
			logger.WithMailbox(mailbox.ID).WithError(err).Error("Failed to reset stuck sync")
		}
	}
	return nil
}

// SyncAll runs an incremental sync across every mailbox. Busy
// mailboxes are skipped by the single-flight guard.
func (s *SyncService) SyncAll(ctx context.Context) error {
	mailboxes, err := s.mailboxRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	for _, mailbox := range mailboxes {
		if mailbox.SyncStatus == domain.SyncStatusSyncing || mailbox.SyncStatus == domain.SyncStatusRetryScheduled {
			continue
		}
		if err := s.IncrementalSync(ctx, mailbox.ID); err != nil {
			if appErr := apperr.AsAppError(err); appErr != nil && appErr.Code == apperr.CodeSyncInProgress {
				continue
			}
			logger.WithMailbox(mailbox.ID).WithError(err).Warn("Scheduled sync failed")
		}
	}
	return nil
}

// failOrRetry decides between terminal failure and scheduled retry.
// Retryable provider errors back off 60s, 300s, 900s across at most
// three attempts.
func (s *SyncService) failOrRetry(ctx context.Context, mailbox *domain.Mailbox, syncErr error) error {
	log := logger.WithMailbox(mailbox.ID).WithError(syncErr)

	if out.IsRetryable(syncErr) && mailbox.CanRetry() {
		delay := domain.GetRetryDelay(mailbox.RetryCount)
		nextRetry := time.Now().Add(delay)
		log.WithField("next_retry_in", delay.String()).Warn("Sync failed, retry scheduled")
		if err := s.mailboxRepo.ScheduleRetry(ctx, mailbox.ID, syncErr.Error(), mailbox.RetryCount+1, nextRetry); err != nil {
			return err
		}
		return syncErr
	}

	log.Error("Sync failed")
	if err := s.mailboxRepo.FailSync(ctx, mailbox.ID, syncErr.Error()); err != nil {
		return err
	}
	return syncErr
}

func (s *SyncService) recomputeCounters(ctx context.Context, mailboxID int64) error {
	total, unread, err := s.messageRepo.CountByMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}
	return s.mailboxRepo.UpdateCounters(ctx, mailboxID, total, unread)
}

// managedColumnIndex maps provider label ids to managed column ids.
func (s *SyncService) managedColumnIndex(ctx context.Context, mailboxID int64) (map[string]int64, error) {
	columns, err := s.columnRepo.ListByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int64)
	for _, col := range columns {
		if col.IsManaged() && col.ProviderLabelID != "" {
			index[col.ProviderLabelID] = col.ID
		}
	}
	return index, nil
}

// resolveColumn maps labels to the managed column they mirror, if any.
func resolveColumn(labels []string, columnByLabel map[string]int64) *int64 {
	for _, label := range labels {
		if id, ok := columnByLabel[label]; ok {
			return &id
		}
	}
	return nil
}

func messageFromProvider(mailboxID int64, pm *out.ProviderMessage, columnByLabel map[string]int64) *domain.Message {
	msg := &domain.Message{
		MailboxID:      mailboxID,
		ExternalID:     pm.ExternalID,
		ThreadID:       pm.ThreadID,
		Subject:        pm.Subject,
		SenderName:     pm.SenderName,
		SenderEmail:    pm.SenderEmail,
		Recipients:     pm.Recipients,
		CcAddresses:    pm.CcAddresses,
		Snippet:        pm.Snippet,
		BodyHTML:       pm.BodyHTML,
		BodyText:       pm.BodyText,
		Labels:         pm.Labels,
		HasAttachments: len(pm.Attachments) > 0,
		InternalDate:   pm.InternalDate,
	}
	msg.SyncFlagsFromLabels()
	msg.ColumnID = resolveColumn(pm.Labels, columnByLabel)
	return msg
}
