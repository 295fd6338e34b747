package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *Device) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Device, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Device, error)
	FindBySerial(ctx context.Context, db *gorm.DB, serial string) (*Device, error)
	FindBySlugs(ctx context.Context, db *gorm.DB, slugs []string) ([]*Device, error)
	ExistingSerials(ctx context.Context, db *gorm.DB, serials []string) ([]string, error)
	// List expects db to carry the visibility scope.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Device, int64, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// SwapStatus moves the device from one status to another and reports
	// whether the device was in the expected status.
	SwapStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	MoveToAccount(ctx context.Context, db *gorm.DB, ids []snowflake.ID, accountID snowflake.ID, at time.Time) error

	InsertItem(ctx context.Context, db *gorm.DB, item *Item) error
	FindItemByNumber(ctx context.Context, db *gorm.DB, number string) (*Item, error)
	ListItems(ctx context.Context, db *gorm.DB) ([]*Item, error)

	InsertRecord(ctx context.Context, db *gorm.DB, r *MaintenanceRecord) error
	// ListRecords expects db to carry the visibility scope.
	ListRecords(ctx context.Context, db *gorm.DB, deviceID *snowflake.ID) ([]*MaintenanceRecord, error)
}
