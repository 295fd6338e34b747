package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
)

type SubscriptionRequest struct {
	StartDate  string `json:"user_start_date"`
	EndDate    string `json:"user_end_date"`
	NumOfUsers *int   `json:"num_of_users"`
}

type CreateAccountRequest struct {
	AccountNumber       string               `json:"account_number"`
	Name                string               `json:"name"`
	Type                Type                 `json:"type"`
	ParentAccountNumber string               `json:"parent_account_number"`
	Domain              string               `json:"domain"`
	Language            string               `json:"language"`
	Phone1              string               `json:"phone1"`
	Phone1Ext           string               `json:"phone1_ext"`
	Phone2              string               `json:"phone2"`
	Phone2Ext           string               `json:"phone2_ext"`
	City                string               `json:"city"`
	State               string               `json:"state"`
	Country             string               `json:"country"`
	Zipcode             string               `json:"zipcode"`
	Address1            string               `json:"address1"`
	Address2            string               `json:"address2"`
	Address3            string               `json:"address3"`
	Subscription        *SubscriptionRequest `json:"user_subscription"`
}

type UpdateAccountRequest struct {
	Name      *string `json:"name"`
	Language  *string `json:"language"`
	Phone1    *string `json:"phone1"`
	Phone1Ext *string `json:"phone1_ext"`
	Phone2    *string `json:"phone2"`
	Phone2Ext *string `json:"phone2_ext"`
	City      *string `json:"city"`
	State     *string `json:"state"`
	Country   *string `json:"country"`
	Zipcode   *string `json:"zipcode"`
	Address1  *string `json:"address1"`
	Address2  *string `json:"address2"`
	Address3  *string `json:"address3"`
}

type ListAccountRequest struct {
	pagination.Pagination
	Type     Type          `form:"type"`
	Search   string        `form:"search"`
	IsActive *bool         `form:"is_active"`
	ParentID *snowflake.ID `form:"-"`
}

type ListAccountResponse struct {
	pagination.PageInfo
	Accounts []*Account `json:"accounts"`
}

type AcquireRequest struct {
	Acquired  string `json:"account_acquired"`
	Acquiring string `json:"account_acquiring"`
}

// SetActiveRequest toggles the account itself (IsHQ) and/or every account
// below it (IsSubsidiaries).
type SetActiveRequest struct {
	IsActive       bool `json:"is_active"`
	IsHQ           bool `json:"is_hq"`
	IsSubsidiaries bool `json:"is_subsidiaries"`
}

type AdminRef struct {
	ID    snowflake.ID `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
}

type AccountDetail struct {
	*Account
	ParentAccountNumber *string    `json:"parent_account_number,omitempty"`
	Admin               *AdminRef  `json:"account_admin,omitempty"`
	Subsidiaries        []*Account `json:"subsidiaries"`
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (*Account, error)
	// Provision creates an account without an authorization check; callers gate it.
	Provision(ctx context.Context, req CreateAccountRequest) (*Account, error)
	Get(ctx context.Context, slug string) (*AccountDetail, error)
	List(ctx context.Context, req ListAccountRequest) (ListAccountResponse, error)
	Update(ctx context.Context, slug string, req UpdateAccountRequest) (*Account, error)
	Delete(ctx context.Context, slug string) error

	Acquire(ctx context.Context, req AcquireRequest) (*Account, error)
	AcquiringCandidates(ctx context.Context, slug string) ([]*Account, error)
	Subsidiaries(ctx context.Context, slug string) ([]*Account, error)
	SetActive(ctx context.Context, slug string, req SetActiveRequest) (*Account, error)
	SetDomain(ctx context.Context, slug string, domain string) (*Account, error)
	Subscription(ctx context.Context, slug string) (subscriptiondomain.Summary, error)

	Admin(ctx context.Context, accountID snowflake.ID) (*userdomain.User, error)
	// WalkAncestors follows parent links from account upward, nearest first.
	WalkAncestors(ctx context.Context, account *Account) ([]*Account, error)
	// CaseUsers lists users that may be given roles on cases of the account.
	CaseUsers(ctx context.Context, slug string) ([]*userdomain.User, error)
	FindByNumber(ctx context.Context, number string) (*Account, error)
}

var (
	ErrAccountNotFound = errors.New("account_not_found")
	ErrInvalidAccount  = errors.New("invalid_account")
	ErrAncestorCycle   = errors.New("account_ancestor_cycle")

	ErrAccountNumberTaken = apperr.Conflict("An account with this account number already exists")
	ErrAcquireSelf        = apperr.Conflict("An account cannot acquire itself")
	ErrAcquireDescendant  = apperr.Conflict("An account cannot be acquired by one of its subsidiaries")
	ErrNoAccountAdmin     = apperr.Conflict("Account Admin does not exist")
	ErrDomainExists       = apperr.Conflict("Domain already exists")
	ErrInvalidDomain      = apperr.Invalid("domain", "Unable to parse domain, might not be valid")
)
