// Package domain contains the account hierarchy types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeHQ    Type = "hq"
	TypeSub   Type = "sub"
	TypeHQSub Type = "hq_sub"
)

func (t Type) Valid() bool {
	switch t {
	case TypeHQ, TypeSub, TypeHQSub:
		return true
	}
	return false
}

// Account is an organization in the HQ/subsidiary tree. Parents caches the
// account numbers of its ancestors, nearest first; the account_ancestors
// closure rows carry the same chain by id.
type Account struct {
	ID            snowflake.ID                `gorm:"primaryKey" json:"id"`
	AccountNumber string                      `gorm:"type:varchar(12);not null;uniqueIndex" json:"account_number"`
	Slug          string                      `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	Name          string                      `gorm:"type:varchar(255);not null" json:"name"`
	Type          Type                        `gorm:"type:varchar(16);not null;default:'hq'" json:"type"`
	ParentID      *snowflake.ID               `gorm:"index" json:"parent_id,omitempty"`
	Parents       datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"parents"`
	Domain        *string                     `gorm:"type:varchar(255)" json:"domain,omitempty"`
	Language      string                      `gorm:"type:varchar(10);not null;default:'en'" json:"language"`
	Phone1        string                      `gorm:"column:phone1;type:varchar(15)" json:"phone1"`
	Phone1Ext     string                      `gorm:"column:phone1_ext;type:varchar(6)" json:"phone1_ext"`
	Phone2        string                      `gorm:"column:phone2;type:varchar(15)" json:"phone2"`
	Phone2Ext     string                      `gorm:"column:phone2_ext;type:varchar(6)" json:"phone2_ext"`
	City          string                      `gorm:"type:varchar(255)" json:"city"`
	State         string                      `gorm:"type:varchar(255)" json:"state"`
	Country       string                      `gorm:"type:varchar(255)" json:"country"`
	Zipcode       string                      `gorm:"type:varchar(11)" json:"zipcode"`
	Address1      string                      `gorm:"column:address1;type:varchar(512)" json:"address1"`
	Address2      string                      `gorm:"column:address2;type:varchar(512)" json:"address2"`
	Address3      string                      `gorm:"column:address3;type:varchar(512)" json:"address3"`
	IsActive      bool                        `gorm:"not null;default:false" json:"is_active"`
	CreatedAt     time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// IsRoot reports whether the account has no parent.
func (a Account) IsRoot() bool {
	return a.ParentID == nil || *a.ParentID == a.ID
}

// Ancestor is one closure row: AncestorID is Depth levels above AccountID.
type Ancestor struct {
	AccountID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	AncestorID snowflake.ID `gorm:"primaryKey;autoIncrement:false;index"`
	Depth      int          `gorm:"not null"`
}

func (Ancestor) TableName() string { return "account_ancestors" }

type ListFilter struct {
	Type     Type
	Search   string
	IsActive *bool
	ParentID *snowflake.ID
	Offset   int
	Limit    int
}

// References counts rows that keep an account from being deleted.
type References struct {
	Users               int64
	Devices             int64
	Cases               int64
	Subsidiaries        int64
	ActiveSubscriptions int64
}
