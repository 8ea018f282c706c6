package services

import (
	"context"
	"errors"

	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/logger"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrOperationFailed    = errors.New("operation failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// notify publishes change signals. The write already happened, so a failure
// only delays watchers until the next signal.
func notify(ctx context.Context, n feed.Notifier, topics ...string) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, topics...); err != nil {
		logger.Warn().Err(err).Strs("topics", topics).Msg("publish change signal failed")
	}
}
