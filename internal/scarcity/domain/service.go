package domain

import (
	"context"
	"errors"
)

// FailurePolicy decides what an operation returns when the store fails.
type FailurePolicy string

const (
	// PolicyFailOpen answers with a permissive fallback and logs the error.
	PolicyFailOpen FailurePolicy = "fail_open"
	// PolicyFailClosed propagates the error to the caller.
	PolicyFailClosed FailurePolicy = "fail_closed"
)

type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

type Competition string

const (
	CompetitionLow       Competition = "low"
	CompetitionMedium    Competition = "medium"
	CompetitionHigh      Competition = "high"
	CompetitionSaturated Competition = "saturated"
)

type Service interface {
	CanUpgradeToPlan(ctx context.Context, req UpgradeRequest) (*UpgradeDecision, error)
	GetScarcityMetrics(ctx context.Context, categoryID string) (*SlotSnapshot, error)
}

type UpgradeRequest struct {
	CategoryID string
	Plan       string
	Zone       string
	Specialty  string
}

// UpgradeDecision answers whether a business may take a paid slot. Unlimited
// capacity is reported with the configured sentinel in SlotsLeft and
// TotalSlots and Unlimited set.
type UpgradeDecision struct {
	CanUpgrade       bool    `json:"canUpgrade"`
	SlotsLeft        int     `json:"slotsLeft"`
	TotalSlots       int     `json:"totalSlots"`
	Unlimited        bool    `json:"unlimited,omitempty"`
	WaitlistPosition int     `json:"waitlistPosition,omitempty"`
	Message          string  `json:"message"`
	UrgencyLevel     Urgency `json:"urgencyLevel"`
	Degraded         bool    `json:"degraded,omitempty"`
}

type PlanCounts struct {
	Free     int64 `json:"free"`
	Featured int64 `json:"featured"`
	Sponsor  int64 `json:"sponsor"`
}

// Saturation is the percentage of each paid tier already taken, rounded. An
// unlimited tier reports 0.
type Saturation struct {
	Featured int `json:"featured"`
	Sponsor  int `json:"sponsor"`
}

type SlotSnapshot struct {
	CategoryID       string      `json:"categoryId"`
	TotalBusinesses  int64       `json:"totalBusinesses"`
	ByPlan           PlanCounts  `json:"byPlan"`
	Saturation       Saturation  `json:"saturation"`
	CompetitionLevel Competition `json:"competitionLevel"`
	Degraded         bool        `json:"degraded,omitempty"`
}

var (
	ErrInvalidCategory = errors.New("invalid_category")
	ErrInvalidPlan     = errors.New("invalid_plan")
)
