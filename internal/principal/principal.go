// Package principal carries the authenticated caller through request contexts.
package principal

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	UserTypeUser    = "User"
	UserTypeContact = "Contact"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the acting user as seen by authorization and scoping.
// AccountID and ParentAccountID are zero when absent.
type Principal struct {
	UserID          snowflake.ID
	AccountID       snowflake.ID
	ParentAccountID snowflake.ID
	UserType        string
	IsSuperuser     bool
	IsPlatformAdmin bool
}

func (p Principal) HasAccount() bool {
	return p.AccountID != 0
}

func (p Principal) HasParentAccount() bool {
	return p.ParentAccountID != 0
}

// System is used by background jobs; it bypasses permission checks.
func System() Principal {
	return Principal{IsSuperuser: true, UserType: UserTypeUser}
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// Require returns the principal or ErrUnauthenticated.
func Require(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok || (p.UserID == 0 && !p.IsSuperuser) {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}
