package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindPaymentReminder Kind = "payment_reminder"
	KindPaymentOverdue  Kind = "payment_overdue"
	KindPlanDowngraded  Kind = "plan_downgraded"
	KindSlotAvailable   Kind = "slot_available"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelLog   Channel = "log"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one outbound notification in the outbox.
type Message struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	CorrelationID string            `json:"correlation_id" gorm:"column:correlation_id;type:text;not null"`
	Kind          Kind              `json:"kind" gorm:"column:kind;type:text;not null"`
	BusinessID    snowflake.ID      `json:"business_id" gorm:"column:business_id"`
	Channel       Channel           `json:"channel" gorm:"column:channel;type:text;not null"`
	Recipient     string            `json:"recipient" gorm:"column:recipient;type:text"`
	Payload       datatypes.JSONMap `json:"payload" gorm:"column:payload;type:jsonb"`
	DedupeKey     *string           `json:"dedupe_key,omitempty" gorm:"column:dedupe_key;type:text"`
	Status        Status            `json:"status" gorm:"column:status;type:text;not null;default:pending"`
	Attempts      int               `json:"attempts" gorm:"column:attempts;not null;default:0"`
	LastError     string            `json:"last_error,omitempty" gorm:"column:last_error;type:text"`
	CreatedAt     time.Time         `json:"created_at" gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	SentAt        *time.Time        `json:"sent_at,omitempty" gorm:"column:sent_at"`
}

func (Message) TableName() string { return "notification_outbox" }

func (m *Message) Normalize() {
	if m.Status == "" {
		m.Status = StatusPending
	}
	if m.Channel == "" {
		m.Channel = ChannelLog
	}
	if m.Payload == nil {
		m.Payload = datatypes.JSONMap{}
	}
}
