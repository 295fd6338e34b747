package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() userdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, u *userdomain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (
			id, email, first_name, last_name, slug, account_id, user_type,
			is_superuser, is_platform_admin, is_active, password_hash,
			phone1, language, timezone, city, state, country, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		u.FirstName,
		u.LastName,
		u.Slug,
		u.AccountID,
		u.UserType,
		u.IsSuperuser,
		u.IsPlatformAdmin,
		u.IsActive,
		u.PasswordHash,
		u.Phone1,
		u.Language,
		u.Timezone,
		u.City,
		u.State,
		u.Country,
		u.CreatedAt,
		u.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*userdomain.User, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*userdomain.User, error) {
	return r.findOne(ctx, db, "slug = ?", strings.TrimSpace(slug))
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*userdomain.User, error) {
	return r.findOne(ctx, db, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*userdomain.User, error) {
	var u userdomain.User
	err := db.WithContext(ctx).Where(cond, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, userdomain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter userdomain.ListFilter) ([]*userdomain.User, int64, error) {
	query := db.WithContext(ctx).Model(&userdomain.User{})
	if filter.AccountID != nil {
		query = query.Where("users.account_id = ?", *filter.AccountID)
	}
	if filter.UserType != "" {
		query = query.Where("users.user_type = ?", filter.UserType)
	}
	if filter.IsActive != nil {
		query = query.Where("users.is_active = ?", *filter.IsActive)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where(
			"(LOWER(users.email) LIKE ? OR LOWER(users.first_name) LIKE ? OR LOWER(users.last_name) LIKE ?)",
			like, like, like,
		)
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

	var items []*userdomain.User
	err := query.Order("users.last_name ASC").Order("users.first_name ASC").Order("users.id ASC").Find(&items).Error
	return items, total, err
}

func (r *repo) ListByAccounts(ctx context.Context, db *gorm.DB, accountIDs []snowflake.ID) ([]*userdomain.User, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	var items []*userdomain.User
	err := db.WithContext(ctx).
		Where("account_id IN ? AND is_active = ?", accountIDs, true).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*userdomain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*userdomain.User
	err := db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&items).Error
	return items, err
}

func (r *repo) CountByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM users WHERE account_id = ? AND is_active = ?`,
		accountID, true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&userdomain.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) Account(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*userdomain.AccountInfo, error) {
	var row struct {
		ID       snowflake.ID
		Name     string
		Language string
		ParentID *snowflake.ID
		IsActive bool
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, language, parent_id, is_active FROM accounts WHERE id = ?`, accountID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, userdomain.ErrAccountNotFound
	}
	return &userdomain.AccountInfo{
		ID:       row.ID,
		Name:     row.Name,
		Language: row.Language,
		ParentID: row.ParentID,
		IsActive: row.IsActive,
	}, nil
}
