package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountAssociation is a directed request from one account to another.
// Once accepted the two accounts are associated in both directions.
type AccountAssociation struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	FromAccountID snowflake.ID  `gorm:"not null;uniqueIndex:ux_account_associations_pair" json:"from_account_id"`
	ToAccountID   snowflake.ID  `gorm:"not null;uniqueIndex:ux_account_associations_pair;index" json:"to_account_id"`
	Accepted      bool          `gorm:"not null;default:false" json:"accepted"`
	RequestedBy   *snowflake.ID `json:"requested_by,omitempty"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

func (AccountAssociation) TableName() string { return "account_associations" }

// Partner returns the other side of the association as seen from accountID.
func (a AccountAssociation) Partner(accountID snowflake.ID) snowflake.ID {
	if a.FromAccountID == accountID {
		return a.ToAccountID
	}
	return a.FromAccountID
}

// ContactAssociation links a Contact user to an account.
type ContactAssociation struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ContactUserID snowflake.ID `gorm:"not null;uniqueIndex:ux_contact_associations_pair" json:"contact_user_id"`
	AccountID     snowflake.ID `gorm:"not null;uniqueIndex:ux_contact_associations_pair;index" json:"account_id"`
	Accepted      bool         `gorm:"not null;default:false" json:"accepted"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (ContactAssociation) TableName() string { return "contact_associations" }

type AccountFilter struct {
	AccountID snowflake.ID
	// Accepted filters by state when set.
	Accepted *bool
}

type ContactFilter struct {
	AccountID     snowflake.ID
	ContactUserID snowflake.ID
	Accepted      *bool
}
