package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ProviderNote is a note written on a case by one of its providers.
type ProviderNote struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug    string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	CaseID  snowflake.ID `gorm:"not null;index" json:"case_id"`
	UserID  snowflake.ID `gorm:"not null;index" json:"user_id"`
	Subject string       `gorm:"type:varchar(255);not null" json:"subject"`
	Content string       `gorm:"type:text;not null" json:"content"`
	// DefaultCaseRoles are the roles the author held on the case when writing.
	DefaultCaseRoles datatypes.JSONSlice[string] `gorm:"type:json" json:"default_case_roles"`
	CreatedAt        time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"not null" json:"updated_at"`
}

func (ProviderNote) TableName() string { return "provider_notes" }

type ListFilter struct {
	CaseID *snowflake.ID
	UserID *snowflake.ID
	Offset int
	Limit  int
}
