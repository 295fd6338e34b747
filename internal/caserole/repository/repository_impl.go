package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() caseroledomain.Repository {
	return &repo{}
}

func (r *repo) EnsureRole(ctx context.Context, db *gorm.DB, role *caseroledomain.DefaultRole) (*caseroledomain.DefaultRole, error) {
	var existing caseroledomain.DefaultRole
	err := db.WithContext(ctx).Where("name = ?", role.Name).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := db.WithContext(ctx).Create(role).Error; err != nil {
		return nil, err
	}
	return role, nil
}

func (r *repo) ListRoles(ctx context.Context, db *gorm.DB) ([]*caseroledomain.DefaultRole, error) {
	var items []*caseroledomain.DefaultRole
	err := db.WithContext(ctx).Order("name ASC").Find(&items).Error
	return items, err
}

func (r *repo) EnsurePermission(ctx context.Context, db *gorm.DB, perm *caseroledomain.CasePermission) (*caseroledomain.CasePermission, error) {
	var existing caseroledomain.CasePermission
	err := db.WithContext(ctx).Where("code = ?", perm.Code).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := db.WithContext(ctx).Create(perm).Error; err != nil {
		return nil, err
	}
	return perm, nil
}

func (r *repo) LinkPermission(ctx context.Context, db *gorm.DB, link *caseroledomain.CaseRolePermission) error {
	var count int64
	err := db.WithContext(ctx).Model(&caseroledomain.CaseRolePermission{}).
		Where("case_default_role_id = ? AND case_permission_id = ?", link.DefaultRoleID, link.PermissionID).
		Count(&count).Error
	if err != nil || count > 0 {
		return err
	}
	return db.WithContext(ctx).Create(link).Error
}

func (r *repo) ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*caseroledomain.CaseRole, error) {
	var items []*caseroledomain.CaseRole
	err := db.WithContext(ctx).Where("case_id = ?", caseID).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, roles []*caseroledomain.CaseRole) error {
	if len(roles) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&roles).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, caseID, roleID, userID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("case_id = ? AND case_default_role_id = ? AND user_id = ?", caseID, roleID, userID).
		Delete(&caseroledomain.CaseRole{}).Error
}

func (r *repo) HoldersOf(ctx context.Context, db *gorm.DB, caseID snowflake.ID, roleIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Model(&caseroledomain.CaseRole{}).
		Distinct("user_id").
		Where("case_id = ? AND case_default_role_id IN ?", caseID, roleIDs).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *repo) SetParentUser(ctx context.Context, db *gorm.DB, caseID snowflake.ID, userID *snowflake.ID) error {
	return db.WithContext(ctx).Exec(`UPDATE cases SET parent_user_id = ? WHERE id = ?`, userID, caseID).Error
}
