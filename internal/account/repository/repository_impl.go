package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *accountdomain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accountdomain.Account, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*accountdomain.Account, error) {
	return r.findOne(ctx, db, "slug = ?", strings.TrimSpace(slug))
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*accountdomain.Account, error) {
	return r.findOne(ctx, db, "account_number = ?", strings.TrimSpace(number))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*accountdomain.Account, error) {
	var account accountdomain.Account
	err := db.WithContext(ctx).Where(cond, arg).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, accountdomain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter accountdomain.ListFilter) ([]*accountdomain.Account, int64, error) {
	query := db.WithContext(ctx).Model(&accountdomain.Account{})
	if filter.Type != "" {
		query = query.Where("accounts.type = ?", filter.Type)
	}
	if filter.IsActive != nil {
		query = query.Where("accounts.is_active = ?", *filter.IsActive)
	}
	if filter.ParentID != nil {
		query = query.Where("accounts.parent_id = ?", *filter.ParentID)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("(LOWER(accounts.name) LIKE ? OR LOWER(accounts.account_number) LIKE ?)", like, like)
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

	var items []*accountdomain.Account
	err := query.Order("accounts.name ASC").Order("accounts.id ASC").Find(&items).Error
	return items, total, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&accountdomain.Account{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM account_ancestors WHERE account_id = ? OR ancestor_id = ?`, id, id,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM accounts WHERE id = ?`, id).Error
}

func (r *repo) Children(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]*accountdomain.Account, error) {
	var items []*accountdomain.Account
	err := db.WithContext(ctx).
		Where("parent_id = ? AND id <> ?", parentID, parentID).
		Order("name ASC").Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) Descendants(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]*accountdomain.Account, error) {
	var items []*accountdomain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT a.* FROM accounts a
		 JOIN account_ancestors x ON x.account_id = a.id
		 WHERE x.ancestor_id = ?
		 ORDER BY x.depth ASC, a.id ASC`, id,
	).Scan(&items).Error
	return items, err
}

func (r *repo) AncestorIDs(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT ancestor_id FROM account_ancestors WHERE account_id = ? ORDER BY depth ASC`, id,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ReplaceAncestors(ctx context.Context, db *gorm.DB, accountID snowflake.ID, rows []accountdomain.Ancestor) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM account_ancestors WHERE account_id = ?`, accountID).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) Candidates(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]*accountdomain.Account, error) {
	var items []*accountdomain.Account
	err := db.WithContext(ctx).
		Where("id <> ?", id).
		Where("id NOT IN (SELECT account_id FROM account_ancestors WHERE ancestor_id = ?)", id).
		Where("id NOT IN (SELECT ancestor_id FROM account_ancestors WHERE account_id = ?)", id).
		Order("name ASC").Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, ids []snowflake.ID, active bool) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&accountdomain.Account{}).
		Where("id IN ?", ids).
		Update("is_active", active).Error
}

func (r *repo) References(ctx context.Context, db *gorm.DB, id snowflake.ID) (accountdomain.References, error) {
	var refs accountdomain.References
	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&refs.Users, `SELECT COUNT(*) FROM users WHERE account_id = ?`, []any{id}},
		{&refs.Devices, `SELECT COUNT(*) FROM devices WHERE account_id = ?`, []any{id}},
		{&refs.Cases, `SELECT COUNT(*) FROM cases WHERE account_id = ?`, []any{id}},
		{&refs.Subsidiaries, `SELECT COUNT(*) FROM accounts WHERE parent_id = ? AND id <> ?`, []any{id, id}},
		{&refs.ActiveSubscriptions, `SELECT COUNT(*) FROM user_subscriptions WHERE account_id = ? AND is_active = ?`, []any{id, true}},
	}
	for _, c := range counts {
		if err := db.WithContext(ctx).Raw(c.query, c.args...).Scan(c.dst).Error; err != nil {
			return accountdomain.References{}, err
		}
	}
	return refs, nil
}
