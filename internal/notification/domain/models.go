package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	// StatusSending rows were claimed by a worker and handed to the mailer.
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	// StatusSkipped rows are in-app only; the template disables email.
	StatusSkipped Status = "skipped"
)

// Notification is one outbox row. Subject and Body are rendered when the row
// is written so the in-app feed and the email agree.
type Notification struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	ToUserID   snowflake.ID      `gorm:"not null;index" json:"to_user_id"`
	FromUserID *snowflake.ID     `json:"from_user_id,omitempty"`
	Subject    string            `gorm:"type:text;not null" json:"subject"`
	Body       string            `gorm:"type:text;not null" json:"body"`
	Context    datatypes.JSONMap `json:"context,omitempty"`
	Status     Status            `gorm:"type:text;not null;index" json:"status"`
	Attempts   int               `gorm:"not null;default:0" json:"-"`
	LastError  *string           `gorm:"type:text" json:"-"`
	IsRead     bool              `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	ClaimedAt  *time.Time        `json:"-"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	ReadAt     *time.Time        `json:"read_at,omitempty"`
}

func (Notification) TableName() string { return "notifications" }

// Event is what domain services hand to the dispatcher.
type Event struct {
	Action     string
	ToUserID   snowflake.ID
	FromUserID *snowflake.ID
	Context    map[string]any
}

type ListFilter struct {
	UserID     snowflake.ID
	UnreadOnly bool
	Offset     int
	Limit      int
}
