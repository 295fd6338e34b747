package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Email           string        `json:"email"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	Password        string        `json:"password"`
	AccountID       *snowflake.ID `json:"account_id"`
	Groups          []string      `json:"groups"`
	IsSuperuser     bool          `json:"is_superuser"`
	IsPlatformAdmin bool          `json:"is_platform_admin"`
	Phone1          string        `json:"phone1"`
	Language        string        `json:"language"`
	Timezone        string        `json:"timezone"`
	City            string        `json:"city"`
	State           string        `json:"state"`
	Country         string        `json:"country"`
}

type UpdateUserRequest struct {
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	Phone1    *string   `json:"phone1"`
	Language  *string   `json:"language"`
	Timezone  *string   `json:"timezone"`
	City      *string   `json:"city"`
	State     *string   `json:"state"`
	Country   *string   `json:"country"`
	IsActive  *bool     `json:"is_active"`
	Groups    *[]string `json:"groups"`
}

// CreateContactRequest creates a Contact user tied to an account, as done for
// the parent of a case.
type CreateContactRequest struct {
	Email     string
	FirstName string
	LastName  string
	Phone1    string
	AccountID snowflake.ID
}

type ListUserRequest struct {
	pagination.Pagination
	AccountID *snowflake.ID `form:"-"`
	UserType  string        `form:"user_type"`
	Search    string        `form:"search"`
	IsActive  *bool         `form:"is_active"`
}

type ListUserResponse struct {
	pagination.PageInfo
	Users []*User `json:"users"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type Service interface {
	Create(ctx context.Context, req CreateUserRequest) (*User, error)
	Get(ctx context.Context, slug string) (*User, error)
	List(ctx context.Context, req ListUserRequest) (ListUserResponse, error)
	Update(ctx context.Context, slug string, req UpdateUserRequest) (*User, error)
	// Delete deactivates the user; rows stay for case history.
	Delete(ctx context.Context, slug string) error
	SetGroups(ctx context.Context, slug string, groups []string) (*User, error)
	Me(ctx context.Context) (*User, error)
	ChangePassword(ctx context.Context, req ChangePasswordRequest) error

	// CreateSystemContact writes a Contact user and an accepted contact
	// association on tx. The caller grants the Contact group after commit.
	CreateSystemContact(ctx context.Context, tx *gorm.DB, req CreateContactRequest) (*User, error)
	// AddGroup adds group to the user's groups without a permission check.
	AddGroup(ctx context.Context, userID snowflake.ID, group string) error
	GroupsOf(ctx context.Context, userID snowflake.ID) ([]string, error)
	AccountAdmin(ctx context.Context, accountID snowflake.ID) (*User, error)
	UsersOfAccounts(ctx context.Context, accountIDs []snowflake.ID) ([]*User, error)
	FindByIDs(ctx context.Context, ids []snowflake.ID) ([]*User, error)
	// Principal builds the authenticated view of an active user.
	Principal(ctx context.Context, userID snowflake.ID) (principal.Principal, error)
}

var (
	ErrUserNotFound    = errors.New("user_not_found")
	ErrAccountNotFound = errors.New("account_not_found")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInactiveUser    = errors.New("inactive_user")
	ErrInvalidPassword = errors.New("invalid_password")

	ErrEmailTaken          = apperr.Conflict("A user with this email already exists")
	ErrUserLimitReached    = apperr.Invalid("subscription", "Subscription limit exceeded for this account")
	ErrAccountAdminExists  = apperr.Invalid("groups", "This account already has account admin")
	ErrAdminGroupForbidden = apperr.Invalid("groups", "Only superusers can assign Account Admin")
)
