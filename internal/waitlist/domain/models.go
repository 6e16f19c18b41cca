package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusNotified  Status = "notified"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

// Entry is a business queued for a promotional slot of a full category.
type Entry struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	BusinessID snowflake.ID `json:"business_id" gorm:"column:business_id;not null"`
	Category   string       `json:"category" gorm:"column:category;type:text;not null"`
	Plan       string       `json:"plan" gorm:"column:plan;type:text;not null"`
	Zone       string       `json:"zone,omitempty" gorm:"column:zone;type:text"`
	Specialty  string       `json:"specialty,omitempty" gorm:"column:specialty;type:text"`
	Status     Status       `json:"status" gorm:"column:status;type:text;not null;default:waiting"`
	Position   int          `json:"position" gorm:"column:position;not null;default:0"`
	NotifiedAt *time.Time   `json:"notified_at,omitempty" gorm:"column:notified_at"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty" gorm:"column:expires_at"`
	CreatedAt  time.Time    `json:"created_at" gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

func (Entry) TableName() string { return "waitlist_entries" }

func (e *Entry) Normalize() {
	if e.Status == "" {
		e.Status = StatusWaiting
	}
}

// Key identifies one queue. Empty Zone or Specialty means the queue is not
// narrowed by it.
type Key struct {
	Category  string
	Plan      string
	Zone      string
	Specialty string
}
