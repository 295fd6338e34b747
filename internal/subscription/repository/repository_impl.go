package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.UserSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_subscriptions (
			id, account_id, start_date, end_date, num_of_users, is_active, is_cancelled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.AccountID,
		sub.StartDate,
		sub.EndDate,
		sub.NumOfUsers,
		sub.IsActive,
		sub.IsCancelled,
		sub.CreatedAt,
	).Error
}

func (r *repo) InsertDevice(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.DeviceSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO device_subscriptions (id, account_id, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sub.ID,
		sub.AccountID,
		sub.StartDate,
		sub.EndDate,
		sub.CreatedAt,
	).Error
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	var items []*subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("account_id = ? AND is_active = ? AND is_cancelled = ?", accountID, true, false).
		Order("created_at DESC").Order("id DESC").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (r *repo) FindCurrentMany(ctx context.Context, db *gorm.DB, accountIDs []snowflake.ID) (map[snowflake.ID]*subscriptiondomain.UserSubscription, error) {
	out := make(map[snowflake.ID]*subscriptiondomain.UserSubscription, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}

	var items []*subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("account_id IN ? AND is_active = ? AND is_cancelled = ?", accountIDs, true, false).
		Order("created_at DESC").Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, seen := out[item.AccountID]; !seen {
			out[item.AccountID] = item
		}
	}
	return out, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*subscriptiondomain.UserSubscription, error) {
	var items []*subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").Order("id DESC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListDevice(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*subscriptiondomain.DeviceSubscription, error) {
	var items []*subscriptiondomain.DeviceSubscription
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").Order("id DESC").
		Find(&items).Error
	return items, err
}

func (r *repo) DeactivateActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_subscriptions SET is_active = ? WHERE account_id = ? AND is_active = ?`,
		false, accountID, true,
	).Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_subscriptions SET is_active = ?, is_cancelled = ? WHERE id = ?`,
		false, true, id,
	).Error
}

func (r *repo) DeleteInactive(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM user_subscriptions
		WHERE account_id = ?
		AND NOT EXISTS (SELECT 1 FROM user_subscriptions s WHERE s.account_id = ? AND s.is_active = ?)`,
		accountID, accountID, true,
	).Error
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, day time.Time, limit int) ([]*subscriptiondomain.UserSubscription, error) {
	var items []*subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).
		Where("is_active = ? AND end_date < ?", true, day).
		Order("end_date ASC").Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_subscriptions SET is_active = ? WHERE id = ?`,
		false, id,
	).Error
}

func (r *repo) StampDeviceStartDate(ctx context.Context, db *gorm.DB, accountID snowflake.ID, start time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE devices SET sub_start_date = ? WHERE account_id = ? AND sub_start_date IS NULL`,
		start, accountID,
	).Error
}

func (r *repo) DeactivateAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET is_active = ? WHERE id = ?`,
		false, accountID,
	).Error
}

func (r *repo) AccountNumber(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (string, error) {
	var numbers []string
	err := db.WithContext(ctx).Raw(`SELECT account_number FROM accounts WHERE id = ?`, accountID).
		Scan(&numbers).Error
	if err != nil {
		return "", err
	}
	if len(numbers) == 0 {
		return "", gorm.ErrRecordNotFound
	}
	return numbers[0], nil
}

func (r *repo) CountUsers(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM users WHERE account_id = ?`, accountID).
		Scan(&count).Error
	return count, err
}

func (r *repo) CountDevices(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM devices WHERE account_id = ?`, accountID).
		Scan(&count).Error
	return count, err
}
