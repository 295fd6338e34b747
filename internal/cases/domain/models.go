package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
)

const CaseNoWidth = 7

var Genders = []string{"Male", "Female", "Undeclared"}

var ParentTitles = []string{"Mr.", "Mrs.", "Ms."}

var ParentRelationships = []string{"Mother", "Father", "Guardian"}

type Case struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	CaseNo       string        `gorm:"type:varchar(15);not null;uniqueIndex" json:"case_no"`
	Slug         string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	PatientID    snowflake.ID  `gorm:"not null" json:"patient_id"`
	ParentID     *snowflake.ID `json:"parent_id,omitempty"`
	ParentUserID *snowflake.ID `json:"parent_user_id,omitempty"`
	AccountID    snowflake.ID  `gorm:"not null;index" json:"account_id"`
	IsConsent    bool          `gorm:"not null;default:false" json:"is_consent"`
	IsActive     bool          `gorm:"not null;default:false" json:"is_active"`
	IsClosed     bool          `gorm:"not null;default:false" json:"is_closed"`
	IsArchived   bool          `gorm:"not null;default:false;index" json:"is_archived"`
	Timezone     string        `gorm:"type:varchar(100);not null;default:'UTC'" json:"timezone"`
	CreatedBy    *snowflake.ID `json:"created_by,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`

	Patient *Patient `gorm:"-" json:"patient,omitempty"`
}

func (Case) TableName() string { return "cases" }

func (c *Case) Ref() caseroledomain.CaseRef {
	return caseroledomain.CaseRef{ID: c.ID, AccountID: c.AccountID, CaseNo: c.CaseNo, Slug: c.Slug}
}

type Patient struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	FirstName    string       `gorm:"type:varchar(255);not null" json:"first_name"`
	LastName     string       `gorm:"type:varchar(255);not null" json:"last_name"`
	MiddleName   string       `gorm:"type:varchar(255)" json:"middle_name,omitempty"`
	Gender       string       `gorm:"type:varchar(50);not null" json:"gender"`
	DateOfBirth  time.Time    `gorm:"type:date;not null" json:"date_of_birth"`
	Address1     string       `gorm:"type:varchar(512);not null" json:"address1"`
	Address2     string       `gorm:"type:varchar(512)" json:"address2,omitempty"`
	City         string       `gorm:"type:varchar(255)" json:"city"`
	State        string       `gorm:"type:varchar(255)" json:"state"`
	Country      string       `gorm:"type:varchar(255)" json:"country"`
	Zipcode      string       `gorm:"type:varchar(11);not null" json:"zipcode"`
	ContactEmail string       `gorm:"type:varchar(150)" json:"contact_email,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Patient) TableName() string { return "patients" }

// Parent is a parent recorded on a case without a login.
type Parent struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	FirstName    string       `gorm:"type:varchar(255)" json:"first_name"`
	LastName     string       `gorm:"type:varchar(255)" json:"last_name"`
	Name         string       `gorm:"type:varchar(255)" json:"name"`
	Title        string       `gorm:"type:varchar(255)" json:"title,omitempty"`
	Relationship string       `gorm:"column:relationship_to_patient;type:varchar(255)" json:"relationship_to_patient,omitempty"`
	Email        string       `gorm:"type:varchar(150)" json:"email,omitempty"`
	Phone1       string       `gorm:"type:varchar(15)" json:"phone1,omitempty"`
	Language     string       `gorm:"type:varchar(10);not null;default:'en'" json:"language"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (Parent) TableName() string { return "case_parents" }

// CaseDevice links a device to a case. One link per case is active.
type CaseDevice struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CaseID    snowflake.ID `gorm:"not null;index" json:"case_id"`
	DeviceID  snowflake.ID `gorm:"not null;index" json:"device_id"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (CaseDevice) TableName() string { return "case_devices" }

type ListFilter struct {
	AccountID       *snowflake.ID
	IsActive        *bool
	IncludeArchived bool
	Search          string
	Offset          int
	Limit           int
}
