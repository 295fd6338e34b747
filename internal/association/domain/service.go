package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/pkg/apperr"
)

type Service interface {
	// RequestAccount asks the admin of toAccountID to associate with the
	// caller's account.
	RequestAccount(ctx context.Context, toAccountID snowflake.ID) (*AccountAssociation, error)
	// RequestViaAdmin asks the caller's own account admin to request an
	// association. No row is written.
	RequestViaAdmin(ctx context.Context, toAccountID snowflake.ID) error
	AcceptAccount(ctx context.Context, id snowflake.ID) (*AccountAssociation, error)
	RemoveAccount(ctx context.Context, id snowflake.ID) error
	ListAccounts(ctx context.Context, accepted *bool) ([]*AccountAssociation, error)
	// Associated returns the accepted partners of accountID in either direction.
	Associated(ctx context.Context, accountID snowflake.ID) ([]snowflake.ID, error)

	RequestContact(ctx context.Context, contactUserID snowflake.ID) (*ContactAssociation, error)
	// RequestContactViaAdmin asks the caller's account admin to associate a
	// contact. InviteContact notifies the contact directly. Neither writes a row.
	RequestContactViaAdmin(ctx context.Context, contactUserID snowflake.ID) error
	InviteContact(ctx context.Context, contactUserID snowflake.ID) error
	AcceptContact(ctx context.Context, id snowflake.ID) (*ContactAssociation, error)
	RemoveContact(ctx context.Context, id snowflake.ID) error
	ListContacts(ctx context.Context, accepted *bool) ([]*ContactAssociation, error)
}

var (
	ErrAssociationNotFound = errors.New("association_not_found")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrInvalidUser         = errors.New("invalid_user")

	ErrSelfAssociation   = apperr.Conflict("An account cannot be associated with itself")
	ErrAssociationExists = apperr.Conflict("Association already exists")
	ErrAlreadyAccepted   = apperr.Conflict("Association is already accepted")
	ErrNotContact        = apperr.Conflict("User is not a contact")
)
