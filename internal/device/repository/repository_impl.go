package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() devicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *devicedomain.Device) error {
	return db.WithContext(ctx).Create(d).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*devicedomain.Device, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*devicedomain.Device, error) {
	return r.findOne(ctx, db, "slug = ?", strings.TrimSpace(slug))
}

func (r *repo) FindBySerial(ctx context.Context, db *gorm.DB, serial string) (*devicedomain.Device, error) {
	return r.findOne(ctx, db, "serial_number = ?", strings.TrimSpace(serial))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*devicedomain.Device, error) {
	var d devicedomain.Device
	err := db.WithContext(ctx).Where(cond, arg).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, devicedomain.ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) FindBySlugs(ctx context.Context, db *gorm.DB, slugs []string) ([]*devicedomain.Device, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	var items []*devicedomain.Device
	err := db.WithContext(ctx).Where("slug IN ?", slugs).Order("serial_number ASC").Find(&items).Error
	return items, err
}

func (r *repo) ExistingSerials(ctx context.Context, db *gorm.DB, serials []string) ([]string, error) {
	if len(serials) == 0 {
		return nil, nil
	}
	var out []string
	err := db.WithContext(ctx).Model(&devicedomain.Device{}).
		Where("serial_number IN ?", serials).
		Pluck("serial_number", &out).Error
	return out, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter devicedomain.ListFilter) ([]*devicedomain.Device, int64, error) {
	query := db.WithContext(ctx).Model(&devicedomain.Device{})
	if filter.AccountID != nil {
		query = query.Where("devices.account_id = ?", *filter.AccountID)
	}
	if filter.Status != "" {
		query = query.Where("devices.status = ?", filter.Status)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		query = query.Where("LOWER(devices.serial_number) LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var items []*devicedomain.Device
	err := query.Order("devices.serial_number ASC").Find(&items).Error
	return items, total, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&devicedomain.Device{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) SwapStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to devicedomain.Status, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&devicedomain.Device{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MoveToAccount(ctx context.Context, db *gorm.DB, ids []snowflake.ID, accountID snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&devicedomain.Device{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"account_id": accountID, "updated_at": at}).Error
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *devicedomain.Item) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) FindItemByNumber(ctx context.Context, db *gorm.DB, number string) (*devicedomain.Item, error) {
	var item devicedomain.Item
	err := db.WithContext(ctx).Where("item_number = ?", strings.TrimSpace(number)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, devicedomain.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB) ([]*devicedomain.Item, error) {
	var items []*devicedomain.Item
	err := db.WithContext(ctx).Order("item_number ASC").Find(&items).Error
	return items, err
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, rec *devicedomain.MaintenanceRecord) error {
	return db.WithContext(ctx).Create(rec).Error
}

func (r *repo) ListRecords(ctx context.Context, db *gorm.DB, deviceID *snowflake.ID) ([]*devicedomain.MaintenanceRecord, error) {
	query := db.WithContext(ctx).Model(&devicedomain.MaintenanceRecord{})
	if deviceID != nil {
		query = query.Where("equipment_maintenance_records.device_id = ?", *deviceID)
	}
	var items []*devicedomain.MaintenanceRecord
	err := query.
		Order("equipment_maintenance_records.created_at DESC").
		Order("equipment_maintenance_records.id DESC").
		Find(&items).Error
	return items, err
}
