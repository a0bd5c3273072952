// Package snooze wakes messages whose snooze time has elapsed.
package snooze

import (
	"context"
	"time"

	"mailboard_server/core/port/out"
	"mailboard_server/pkg/logger"
)

// Service scans for due snoozes and returns those messages to the
// board, flagged so the client can highlight them.
type Service struct {
	messageRepo out.MessageRepository
	batchSize   int
}

// NewService creates a new snooze Service.
func NewService(messageRepo out.MessageRepository, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		messageRepo: messageRepo,
		batchSize:   batchSize,
	}
}

// Run wakes one batch of due messages. Returns how many woke up.
func (s *Service) Run(ctx context.Context) (int, error) {
	due, err := s.messageRepo.DueSnoozed(ctx, time.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(due))
	for i, msg := range due {
		ids[i] = msg.ID
	}

	woken, err := s.messageRepo.WakeSnoozed(ctx, ids)
	if err != nil {
		return 0, err
	}

	logger.WithField("count", woken).Info("Snoozed messages returned to board")
	return woken, nil
}
