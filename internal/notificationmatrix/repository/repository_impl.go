package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() matrixdomain.Repository {
	return &repo{}
}

func (r *repo) EnsureType(ctx context.Context, db *gorm.DB, t *matrixdomain.NotificationType) (*matrixdomain.NotificationType, error) {
	var existing matrixdomain.NotificationType
	err := db.WithContext(ctx).Where("name = ?", t.Name).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repo) ListTypes(ctx context.Context, db *gorm.DB) ([]*matrixdomain.NotificationType, error) {
	var items []*matrixdomain.NotificationType
	err := db.WithContext(ctx).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *repo) EnsureDefault(ctx context.Context, db *gorm.DB, entry *matrixdomain.DefaultEntry) error {
	var count int64
	err := db.WithContext(ctx).Model(&matrixdomain.DefaultEntry{}).
		Where("case_default_role_id = ? AND notification_type_id = ?", entry.DefaultRoleID, entry.NotificationTypeID).
		Count(&count).Error
	if err != nil || count > 0 {
		return err
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListDefault(ctx context.Context, db *gorm.DB) ([]*matrixdomain.DefaultEntry, error) {
	var items []*matrixdomain.DefaultEntry
	err := db.WithContext(ctx).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *repo) UpdateDefault(ctx context.Context, db *gorm.DB, roleID, typeID snowflake.ID, notified bool, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&matrixdomain.DefaultEntry{}).
		Where("case_default_role_id = ? AND notification_type_id = ?", roleID, typeID).
		Updates(map[string]any{"is_notified": notified, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *repo) InsertCase(ctx context.Context, db *gorm.DB, entries []*matrixdomain.CaseEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entries).Error
}

func (r *repo) ListCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*matrixdomain.CaseEntry, error) {
	var items []*matrixdomain.CaseEntry
	err := db.WithContext(ctx).Where("case_id = ?", caseID).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *repo) UpdateCase(ctx context.Context, db *gorm.DB, caseID, roleID, typeID snowflake.ID, notified bool, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&matrixdomain.CaseEntry{}).
		Where("case_id = ? AND case_default_role_id = ? AND notification_type_id = ?", caseID, roleID, typeID).
		Updates(map[string]any{"is_notified": notified, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *repo) Recipients(ctx context.Context, db *gorm.DB, caseID snowflake.ID, typeName string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT cr.user_id
		 FROM case_notification_matrices m
		 JOIN notification_types t ON t.id = m.notification_type_id
		 JOIN case_roles cr ON cr.case_id = m.case_id AND cr.case_default_role_id = m.case_default_role_id
		 WHERE m.case_id = ? AND t.name = ? AND m.is_notified = ?
		 ORDER BY cr.user_id`,
		caseID, typeName, true,
	).Scan(&ids).Error
	return ids, err
}
