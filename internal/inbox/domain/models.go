package domain

import "time"

type Kind string

const (
	KindApplication Kind = "application"
	KindReview      Kind = "review"
	KindPayment     Kind = "payment"
	KindExpiration  Kind = "expiration"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityWarning  Priority = "warning"
	PriorityInfo     Priority = "info"
)

// Score orders priorities; lower is more urgent.
func (p Priority) Score() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityWarning:
		return 2
	default:
		return 3
	}
}

type Action string

const (
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionRequestInfo Action = "request-info"
	ActionPublish     Action = "publish"
	ActionRemind      Action = "remind"
	ActionSuspend     Action = "suspend"
	ActionExtend      Action = "extend"
)

func ParseAction(raw string) (Action, bool) {
	switch a := Action(raw); a {
	case ActionApprove, ActionReject, ActionRequestInfo, ActionPublish,
		ActionRemind, ActionSuspend, ActionExtend:
		return a, true
	default:
		return "", false
	}
}

// Source names one of the queries merged into the inbox.
type Source string

const (
	SourceApplications Source = "applications"
	SourceReviews      Source = "reviews"
	SourcePlans        Source = "plans"
)

// Item is one task for an operator. Items are derived on every read and never
// stored.
type Item struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"type"`
	Priority     Priority       `json:"priority"`
	Score        int            `json:"priorityScore"`
	BusinessID   string         `json:"businessId"`
	BusinessName string         `json:"businessName"`
	Metadata     map[string]any `json:"metadata"`
	Actions      []Action       `json:"actions"`
}

type Inbox struct {
	Items           []Item    `json:"items"`
	DegradedSources []Source  `json:"degraded_sources"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Degraded reports whether at least one source failed.
func (i *Inbox) Degraded() bool {
	return len(i.DegradedSources) > 0
}
