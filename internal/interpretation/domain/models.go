package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Interpretation struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	Slug       string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	CaseID     snowflake.ID  `gorm:"not null;index" json:"case_id"`
	DateFrom   time.Time     `gorm:"type:date;not null" json:"date_from"`
	DateTo     time.Time     `gorm:"type:date;not null" json:"date_to"`
	NoOfEvents int           `gorm:"not null;default:0" json:"no_of_events"`
	Comments   string        `gorm:"type:text" json:"interpretation_comments,omitempty"`
	IsApproved bool          `gorm:"not null;default:false" json:"is_approved"`
	ApprovedBy *snowflake.ID `json:"approved_by,omitempty"`
	ApprovedAt *time.Time    `json:"approved_at,omitempty"`
	CreatedBy  *snowflake.ID `json:"created_by,omitempty"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
}

func (Interpretation) TableName() string { return "interpretations" }

// CaseEvent is a monitoring event recorded against a case.
type CaseEvent struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	CaseID        snowflake.ID `gorm:"not null;index" json:"case_id"`
	OccurredAt    time.Time    `gorm:"not null;index" json:"occurred_at"`
	Kind          string       `gorm:"type:varchar(50)" json:"kind,omitempty"`
	IsInterpreted bool         `gorm:"not null;default:false" json:"is_interpreted"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (CaseEvent) TableName() string { return "case_events" }

// Overlaps reports whether two inclusive day ranges share at least one day:
// min(end) - max(start) + 1 day > 0.
func Overlaps(aFrom, aTo, bFrom, bTo time.Time) bool {
	start := aFrom
	if bFrom.After(start) {
		start = bFrom
	}
	end := aTo
	if bTo.Before(end) {
		end = bTo
	}
	days := int(end.Sub(start).Hours()/24) + 1
	return days > 0
}
