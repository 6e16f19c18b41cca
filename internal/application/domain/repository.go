package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, app *Application) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Application, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Application, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	ListByStatus(ctx context.Context, db *gorm.DB, statuses []Status, limit int) ([]*Application, error)
}
