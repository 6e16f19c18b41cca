package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	"github.com/smallbiznis/directory/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, msg *notificationdomain.Message) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(msg)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, limit int) ([]*notificationdomain.Message, error) {
	return repository.ProvideStore[notificationdomain.Message](db).Find(ctx, repository.Query{
		Filters: []repository.Filter{
			repository.Where("status", repository.OpEq, string(notificationdomain.StatusPending)),
		},
		OrderBy: "id",
		Limit:   limit,
	})
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, sentAt time.Time) error {
	return repository.ProvideStore[notificationdomain.Message](db).UpdateFields(ctx, id, map[string]any{
		"status":     string(notificationdomain.StatusSent),
		"sent_at":    sentAt,
		"last_error": "",
	})
}

func (r *repo) MarkAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastErr string, status notificationdomain.Status) error {
	return repository.ProvideStore[notificationdomain.Message](db).UpdateFields(ctx, id, map[string]any{
		"attempts":   attempts,
		"last_error": lastErr,
		"status":     string(status),
	})
}
