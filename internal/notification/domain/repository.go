package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert stores msg unless another message carries the same dedupe key.
	// It reports whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, msg *Message) (bool, error)
	ListPending(ctx context.Context, db *gorm.DB, limit int) ([]*Message, error)
	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, sentAt time.Time) error
	MarkAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, status Status) error
}
