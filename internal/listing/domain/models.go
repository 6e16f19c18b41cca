package domain

import (
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
)

type Plan string

const (
	PlanFree     Plan = "free"
	PlanFeatured Plan = "featured"
	PlanSponsor  Plan = "sponsor"
)

// IsPaid reports whether the plan occupies a promotional slot.
func (p Plan) IsPaid() bool {
	return p == PlanFeatured || p == PlanSponsor
}

func ParsePlan(raw string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanFree:
		return PlanFree, true
	case PlanFeatured:
		return PlanFeatured, true
	case PlanSponsor:
		return PlanSponsor, true
	default:
		return "", false
	}
}

type BusinessStatus string

const (
	StatusDraft     BusinessStatus = "draft"
	StatusInReview  BusinessStatus = "in_review"
	StatusPublished BusinessStatus = "published"
	StatusRejected  BusinessStatus = "rejected"
	StatusSuspended BusinessStatus = "suspended"
)

const (
	PaymentActive   = "active"
	PaymentOverdue  = "overdue"
	PaymentCanceled = "canceled"
)

const (
	DisabledPaymentOverdue      = "payment_overdue"
	DisabledPaymentGraceExpired = "payment_grace_expired"
)

// DefaultName is shown for records that were saved without a name.
const DefaultName = "Sin nombre"

// Listing is a business entry of the directory.
type Listing struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	Name              string         `json:"name" gorm:"column:name;type:text"`
	Category          string         `json:"category" gorm:"column:category;type:text;index"`
	Zone              string         `json:"zone" gorm:"column:zone;type:text"`
	Specialty         string         `json:"specialty" gorm:"column:specialty;type:text"`
	Plan              Plan           `json:"plan" gorm:"column:plan;type:text;not null;default:free"`
	PreviousPlan      string         `json:"previous_plan,omitempty" gorm:"column:previous_plan;type:text"`
	IsActive          bool           `json:"is_active" gorm:"column:is_active;not null;default:true"`
	DisabledReason    string         `json:"disabled_reason,omitempty" gorm:"column:disabled_reason;type:text"`
	BusinessStatus    BusinessStatus `json:"business_status" gorm:"column:business_status;type:text;not null;default:draft"`
	ApplicationStatus string         `json:"application_status,omitempty" gorm:"column:application_status;type:text"`
	PaymentStatus     string         `json:"payment_status,omitempty" gorm:"column:payment_status;type:text"`
	PlanExpiresAt     *time.Time     `json:"plan_expires_at,omitempty" gorm:"column:plan_expires_at"`
	OwnerEmail        string         `json:"owner_email,omitempty" gorm:"column:owner_email;type:text"`
	PublishedAt       *time.Time     `json:"published_at,omitempty" gorm:"column:published_at"`
	RejectedAt        *time.Time     `json:"rejected_at,omitempty" gorm:"column:rejected_at"`
	SuspendedAt       *time.Time     `json:"suspended_at,omitempty" gorm:"column:suspended_at"`
	ExtendedAt        *time.Time     `json:"extended_at,omitempty" gorm:"column:extended_at"`
	DowngradedAt      *time.Time     `json:"downgraded_at,omitempty" gorm:"column:downgraded_at"`
	CreatedAt         time.Time      `json:"created_at" gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func (Listing) TableName() string { return "listings" }

// Normalize fills documented defaults for fields older records may lack.
func (l *Listing) Normalize() {
	if plan, ok := ParsePlan(string(l.Plan)); ok {
		l.Plan = plan
	} else {
		l.Plan = PlanFree
	}
	switch l.BusinessStatus {
	case StatusDraft, StatusInReview, StatusPublished, StatusRejected, StatusSuspended:
	default:
		l.BusinessStatus = StatusDraft
	}
	l.Category = NormalizeCategory(l.Category)
	l.Zone = strings.ToLower(strings.TrimSpace(l.Zone))
	l.Specialty = NormalizeCategory(l.Specialty)
}

// DisplayName returns the name or the placeholder used across the admin UI.
func (l *Listing) DisplayName() string {
	if name := strings.TrimSpace(l.Name); name != "" {
		return name
	}
	return DefaultName
}

// NormalizeCategory turns free-form labels ("Salones Belleza", "taquerías")
// into the identifiers used by the capacity table ("salones_belleza").
func NormalizeCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.ReplaceAll(slug.Make(raw), "-", "_")
}

// DaysBetween counts whole days from from to to, rounded down. A moment one
// hour in the past is -1.
func DaysBetween(from, to time.Time) int {
	return int(math.Floor(float64(to.Sub(from)) / float64(24*time.Hour)))
}
