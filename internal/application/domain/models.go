package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSolicitud Status = "solicitud"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusNeedsInfo Status = "needs_info"
)

// OpenStatuses are the states an operator still has to act on.
var OpenStatuses = []Status{StatusPending, StatusSolicitud}

// Application is a registration request submitted by a business owner.
type Application struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	BusinessName    string       `json:"business_name" gorm:"column:business_name;type:text"`
	OwnerEmail      string       `json:"owner_email" gorm:"column:owner_email;type:text"`
	Plan            string       `json:"plan" gorm:"column:plan;type:text;not null;default:free"`
	Status          Status       `json:"status" gorm:"column:status;type:text;not null;default:pending"`
	CreatedAt       time.Time    `json:"created_at" gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty" gorm:"column:approved_at"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty" gorm:"column:rejected_at"`
	InfoRequestedAt *time.Time   `json:"info_requested_at,omitempty" gorm:"column:info_requested_at"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func (Application) TableName() string { return "applications" }

func (a *Application) Normalize() {
	a.Plan = strings.ToLower(strings.TrimSpace(a.Plan))
	if a.Plan == "" {
		a.Plan = "free"
	}
	switch a.Status {
	case StatusPending, StatusSolicitud, StatusApproved, StatusRejected, StatusNeedsInfo:
	default:
		a.Status = StatusPending
	}
}

func (a *Application) DisplayName() string {
	if name := strings.TrimSpace(a.BusinessName); name != "" {
		return name
	}
	return "Sin nombre"
}
