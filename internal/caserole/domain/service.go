package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Assignment maps a role name to the desired holders. Roles absent from
// the map are left untouched.
type Assignment map[string][]snowflake.ID

type Service interface {
	// EnsureDefaults seeds the default roles and their case-scoped codes.
	EnsureDefaults(ctx context.Context) error
	Roles(ctx context.Context) ([]*DefaultRole, error)

	// Reconcile applies removals then additions on tx without permission
	// checks. Callers publish the result once tx commits.
	Reconcile(ctx context.Context, tx *gorm.DB, ref CaseRef, desired Assignment) (*Result, error)
	// Publish grants the Parent group and sends one notification per change.
	Publish(ctx context.Context, result *Result)

	Retrieve(ctx context.Context, ref CaseRef) (*CaseRoles, error)
	Update(ctx context.Context, ref CaseRef, desired Assignment) (*CaseRoles, error)
	// Holders returns the users that hold any of roles on the case.
	Holders(ctx context.Context, caseID snowflake.ID, roles []string) ([]snowflake.ID, error)
}

var (
	ErrRoleNotFound = errors.New("case_role_not_found")
)
