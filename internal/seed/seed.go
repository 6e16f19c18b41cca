package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"gorm.io/gorm"
)

const (
	bootstrapKeyName = "bootstrap admin"
	minBootstrapKey  = 24
)

var ErrBootstrapKeyTooShort = errors.New("bootstrap_key_too_short")

// EnsureBootstrapAdminKey registers the operator-supplied admin key so a
// fresh install can reach the admin API before any key has been minted.
// The call is a no-op when raw is empty or the key already exists.
func EnsureBootstrapAdminKey(db *gorm.DB, raw string) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	if len(raw) < minBootstrapKey {
		return false, ErrBootstrapKeyTooShort
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return false, err
	}

	ctx := context.Background()
	hash := apikeydomain.HashAPIKey(raw)
	created := false
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&apikeydomain.APIKey{}).Where("key_hash = ?", hash).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		id := node.Generate()
		key := apikeydomain.APIKey{
			ID:        id,
			KeyID:     apikeydomain.KeyIDFor(id),
			Name:      bootstrapKeyName,
			Role:      apikeydomain.RoleAdmin,
			Scopes:    pq.StringArray{},
			KeyHash:   hash,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&key).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
