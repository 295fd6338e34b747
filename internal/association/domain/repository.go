package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAccount(ctx context.Context, db *gorm.DB, a *AccountAssociation) error
	FindAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AccountAssociation, error)
	// FindAccountPair matches the pair in either direction.
	FindAccountPair(ctx context.Context, db *gorm.DB, a, b snowflake.ID) (*AccountAssociation, error)
	AcceptAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	DeleteAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListAccount(ctx context.Context, db *gorm.DB, filter AccountFilter) ([]*AccountAssociation, error)
	AssociatedAccountIDs(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]snowflake.ID, error)
	DeleteAccountAll(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error

	InsertContact(ctx context.Context, db *gorm.DB, c *ContactAssociation) error
	FindContact(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ContactAssociation, error)
	FindContactPair(ctx context.Context, db *gorm.DB, contactUserID, accountID snowflake.ID) (*ContactAssociation, error)
	AcceptContact(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	DeleteContact(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListContact(ctx context.Context, db *gorm.DB, filter ContactFilter) ([]*ContactAssociation, error)
}

// Party is the display view of an account or user taking part in an association.
type Party struct {
	ID        snowflake.ID
	Label     string
	UserType  string
	AccountID *snowflake.ID
}

type PartyRepository interface {
	Account(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Party, error)
	User(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Party, error)
}
