package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const defaultRetentionHours = 72

// KeyStore is the pruning surface of the idempotency store.
type KeyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// KeyCleaner prunes processed idempotency keys.
type KeyCleaner struct {
	store  KeyStore
	logger *slog.Logger
}

// NewKeyCleaner constructs KeyCleaner.
func NewKeyCleaner(store KeyStore, logger *slog.Logger) *KeyCleaner {
	return &KeyCleaner{store: store, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (k *KeyCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	payload := CleanupPayload{RetentionHours: defaultRetentionHours}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = defaultRetentionHours
	}
	removed, err := k.store.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
	if err != nil {
		return err
	}
	k.logger.Info("idempotency cleanup finished", slog.Int64("removed", removed))
	return nil
}
