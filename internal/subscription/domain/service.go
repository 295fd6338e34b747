package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/pkg/apperr"
)

type CreateSubscriptionRequest struct {
	AccountID  snowflake.ID `json:"-"`
	StartDate  string       `json:"user_start_date"`
	EndDate    string       `json:"user_end_date"`
	NumOfUsers *int         `json:"num_of_users"`
}

type UpdateSubscriptionRequest struct {
	AccountID  snowflake.ID `json:"-"`
	NumOfUsers *int         `json:"num_of_users"`
}

type RenewSubscriptionRequest struct {
	AccountID  snowflake.ID `json:"-"`
	EndDate    string       `json:"user_end_date"`
	NumOfUsers *int         `json:"num_of_users"`
}

type CreateDeviceSubscriptionRequest struct {
	AccountID snowflake.ID `json:"-"`
	StartDate string       `json:"device_start_date"`
	EndDate   string       `json:"device_end_date"`
}

// Summary is the account subscription view: the current subscription with
// user and device usage.
type Summary struct {
	Current                *UserSubscription `json:"current"`
	NumUserSubscriptions   int64             `json:"num_user_subscriptions"`
	NumDeviceSubscriptions int64             `json:"num_device_subscriptions"`
	MaxUserSubscriptions   *int              `json:"max_user_subscriptions"`
}

type Service interface {
	Current(ctx context.Context, accountID snowflake.ID) (*UserSubscription, error)
	CurrentMany(ctx context.Context, accountIDs []snowflake.ID) (map[snowflake.ID]*UserSubscription, error)
	Summary(ctx context.Context, accountID snowflake.ID) (Summary, error)
	History(ctx context.Context, accountID snowflake.ID) ([]*UserSubscription, error)
	MaxUsers(ctx context.Context, accountID snowflake.ID) (int, error)

	Create(ctx context.Context, req CreateSubscriptionRequest) (*UserSubscription, error)
	Update(ctx context.Context, req UpdateSubscriptionRequest) (*UserSubscription, error)
	Renew(ctx context.Context, req RenewSubscriptionRequest) (*UserSubscription, error)
	Cancel(ctx context.Context, accountID snowflake.ID) error
	CreateDevice(ctx context.Context, req CreateDeviceSubscriptionRequest) (*DeviceSubscription, error)

	// ExpireDue deactivates up to limit subscriptions that ended before now.
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	ErrInvalidAccount  = errors.New("invalid_account")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrInvalidUsers    = errors.New("invalid_num_of_users")
	ErrInvalidDate     = errors.New("invalid_date")
	ErrNoCoveringToday = errors.New("no_subscription_covers_today")

	ErrNoCurrentSubscription = apperr.Conflict("Subscription does not exist")
)
