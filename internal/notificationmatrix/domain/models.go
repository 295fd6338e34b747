package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
)

const (
	TypeCaseOpened             = "Case Opened"
	TypeCaseClosed             = "Case Closed"
	TypeCaseArchived           = "Case Archived"
	TypeCaseDeviceChanged      = "Case Device Changed"
	TypeInterpretationCreated  = "Interpretation Created"
	TypeInterpretationApproved = "Interpretation Approved"
	TypeCaseNoteAdded          = "Case Note Added"
)

var DefaultTypes = []string{
	TypeCaseOpened,
	TypeCaseClosed,
	TypeCaseArchived,
	TypeCaseDeviceChanged,
	TypeInterpretationCreated,
	TypeInterpretationApproved,
	TypeCaseNoteAdded,
}

// DefaultNotified is the flag a fresh default matrix starts with.
func DefaultNotified(role, notificationType string) bool {
	switch role {
	case caseroledomain.RoleCaseManager:
		return true
	case caseroledomain.RoleInterpretingPhysician:
		return notificationType == TypeInterpretationCreated
	case caseroledomain.RoleScorer:
		return notificationType == TypeInterpretationApproved
	case caseroledomain.RoleParent:
		return notificationType == TypeCaseOpened || notificationType == TypeCaseClosed
	}
	return false
}

type NotificationType struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Slug      string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (NotificationType) TableName() string { return "notification_types" }

type DefaultEntry struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	DefaultRoleID      snowflake.ID `gorm:"column:case_default_role_id;not null;uniqueIndex:ux_default_matrix_pair" json:"case_default_role_id"`
	NotificationTypeID snowflake.ID `gorm:"not null;uniqueIndex:ux_default_matrix_pair" json:"notification_type_id"`
	IsNotified         bool         `gorm:"not null;default:false" json:"is_notified"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (DefaultEntry) TableName() string { return "default_notification_matrices" }

type CaseEntry struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	CaseID             snowflake.ID `gorm:"not null;uniqueIndex:ux_case_matrix_entry" json:"case_id"`
	DefaultRoleID      snowflake.ID `gorm:"column:case_default_role_id;not null;uniqueIndex:ux_case_matrix_entry" json:"case_default_role_id"`
	NotificationTypeID snowflake.ID `gorm:"not null;uniqueIndex:ux_case_matrix_entry" json:"notification_type_id"`
	IsNotified         bool         `gorm:"not null;default:false" json:"is_notified"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (CaseEntry) TableName() string { return "case_notification_matrices" }

// Override sets one (role, type) flag. Role and NotificationType are slugs.
type Override struct {
	Role             string `json:"role"`
	NotificationType string `json:"notification_type"`
	IsNotified       bool   `json:"is_notified"`
}

// Entry is one matrix cell as shown to clients.
type Entry struct {
	Role                 string `json:"role"`
	RoleSlug             string `json:"role_slug"`
	NotificationType     string `json:"notification_type"`
	NotificationTypeSlug string `json:"notification_type_slug"`
	IsNotified           bool   `json:"is_notified"`
}
