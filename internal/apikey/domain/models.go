package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleFinance   = "finance"
)

// ValidRole reports whether role is one of the operator roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleModerator, RoleFinance:
		return true
	default:
		return false
	}
}

// APIKey stores hashed operator credentials. The raw key is shown once at
// creation and never persisted.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	KeyID      string         `gorm:"column:key_id;type:text;not null;uniqueIndex"`
	Name       string         `gorm:"type:text;not null"`
	Role       string         `gorm:"type:text;not null"`
	Scopes     pq.StringArray `gorm:"type:text[]"`
	KeyHash    string         `gorm:"column:key_hash;type:text;not null"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true"`
	ExpiresAt  *time.Time     `gorm:"column:expires_at"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Principal is the authenticated identity behind an API key.
type Principal struct {
	KeyID     string
	Name      string
	Role      string
	Scopes    []string
	ExpiresAt *time.Time
}

// Subject is the casbin subject for the principal's role.
func (p Principal) Subject() string {
	return "role:" + p.Role
}

func (k *APIKey) Principal() *Principal {
	return &Principal{
		KeyID:     k.KeyID,
		Name:      k.Name,
		Role:      k.Role,
		Scopes:    append([]string(nil), k.Scopes...),
		ExpiresAt: k.ExpiresAt,
	}
}

func (k *APIKey) Response() Response {
	return Response{
		KeyID:      k.KeyID,
		Name:       k.Name,
		Role:       k.Role,
		Scopes:     append([]string{}, k.Scopes...),
		IsActive:   k.IsActive,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
	}
}
