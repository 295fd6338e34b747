package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/principal"
)

const (
	GroupAccountAdmin   = "Account Admin"
	GroupAccountUser    = "Account User"
	GroupCaseManager    = "Case Manager"
	GroupScorer         = "Scorer"
	GroupPhysician      = "Physician"
	GroupBiomedicalUser = "Biomedical User"
	GroupParent         = "Parent"
	GroupContact        = "Contact"
)

// DefaultGroups are seeded on first start.
var DefaultGroups = []string{
	GroupAccountAdmin,
	GroupAccountUser,
	GroupCaseManager,
	GroupScorer,
	GroupPhysician,
	GroupBiomedicalUser,
	GroupParent,
	GroupContact,
}

type Group struct {
	Name        string `json:"name"`
	Permissions int    `json:"permissions"`
	Members     int    `json:"members"`
}

// Service resolves permission codes and checks actions against the rule table.
type Service interface {
	// Resolve returns the codes p holds. Superusers hold every code. With a
	// case target the codes of the case roles p holds on that case are added.
	Resolve(ctx context.Context, p principal.Principal, target *Target) (CodeSet, error)
	// Check returns ErrForbidden unless one grant of action is held and its
	// relation holds for target. A nil target only requires a held code.
	Check(ctx context.Context, p principal.Principal, action Action, target *Target) error

	ListGroups(ctx context.Context) ([]Group, error)
	GroupPermissions(ctx context.Context, group string) ([]Code, error)
	SetGroupPermissions(ctx context.Context, group string, codes []Code) error

	GroupsOf(ctx context.Context, userID snowflake.ID) ([]string, error)
	SetUserGroups(ctx context.Context, userID snowflake.ID, groups []string) error
	UsersInGroup(ctx context.Context, group string) ([]snowflake.ID, error)
	// AccountAdmin returns the lowest-id member of Account Admin whose
	// account is accountID, or ErrNoAccountAdmin.
	AccountAdmin(ctx context.Context, accountID snowflake.ID) (snowflake.ID, error)
}
