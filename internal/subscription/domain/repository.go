package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *UserSubscription) error
	InsertDevice(ctx context.Context, db *gorm.DB, sub *DeviceSubscription) error
	// FindCurrent returns the most recently created active, uncancelled
	// subscription of the account, or nil.
	FindCurrent(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*UserSubscription, error)
	FindCurrentMany(ctx context.Context, db *gorm.DB, accountIDs []snowflake.ID) (map[snowflake.ID]*UserSubscription, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*UserSubscription, error)
	ListDevice(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*DeviceSubscription, error)
	DeactivateActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// DeleteInactive removes the account's subscriptions when none is active.
	DeleteInactive(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error
	// ListExpired returns active subscriptions whose end date is before day.
	ListExpired(ctx context.Context, db *gorm.DB, day time.Time, limit int) ([]*UserSubscription, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	StampDeviceStartDate(ctx context.Context, db *gorm.DB, accountID snowflake.ID, start time.Time) error
	DeactivateAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error
	AccountNumber(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (string, error)
	CountUsers(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	CountDevices(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
}
