package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() associationdomain.Repository {
	return &repo{}
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, a *associationdomain.AccountAssociation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO account_associations (
			id, from_account_id, to_account_id, accepted, requested_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.FromAccountID,
		a.ToAccountID,
		a.Accepted,
		a.RequestedBy,
		a.CreatedAt,
		a.UpdatedAt,
	).Error
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*associationdomain.AccountAssociation, error) {
	var item associationdomain.AccountAssociation
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, associationdomain.ErrAssociationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindAccountPair(ctx context.Context, db *gorm.DB, a, b snowflake.ID) (*associationdomain.AccountAssociation, error) {
	var items []*associationdomain.AccountAssociation
	err := db.WithContext(ctx).
		Where("(from_account_id = ? AND to_account_id = ?) OR (from_account_id = ? AND to_account_id = ?)", a, b, b, a).
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

func (r *repo) AcceptAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE account_associations SET accepted = ?, updated_at = ? WHERE id = ?`,
		true, at, id,
	).Error
}

func (r *repo) DeleteAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM account_associations WHERE id = ?`, id).Error
}

func (r *repo) DeleteAccountAll(ctx context.Context, db *gorm.DB, accountID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM account_associations WHERE from_account_id = ? OR to_account_id = ?`,
		accountID, accountID,
	).Error
}

func (r *repo) ListAccount(ctx context.Context, db *gorm.DB, filter associationdomain.AccountFilter) ([]*associationdomain.AccountAssociation, error) {
	query := db.WithContext(ctx).Model(&associationdomain.AccountAssociation{})
	if filter.AccountID != 0 {
		query = query.Where("from_account_id = ? OR to_account_id = ?", filter.AccountID, filter.AccountID)
	}
	if filter.Accepted != nil {
		query = query.Where("accepted = ?", *filter.Accepted)
	}

	var items []*associationdomain.AccountAssociation
	err := query.Order("created_at DESC").Order("id DESC").Find(&items).Error
	return items, err
}

func (r *repo) AssociatedAccountIDs(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT to_account_id FROM account_associations WHERE from_account_id = ? AND accepted = ?
		UNION
		SELECT from_account_id FROM account_associations WHERE to_account_id = ? AND accepted = ?`,
		accountID, true, accountID, true,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) InsertContact(ctx context.Context, db *gorm.DB, c *associationdomain.ContactAssociation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO contact_associations (
			id, contact_user_id, account_id, accepted, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.ContactUserID,
		c.AccountID,
		c.Accepted,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) FindContact(ctx context.Context, db *gorm.DB, id snowflake.ID) (*associationdomain.ContactAssociation, error) {
	var item associationdomain.ContactAssociation
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, associationdomain.ErrAssociationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindContactPair(ctx context.Context, db *gorm.DB, contactUserID, accountID snowflake.ID) (*associationdomain.ContactAssociation, error) {
	var items []*associationdomain.ContactAssociation
	err := db.WithContext(ctx).
		Where("contact_user_id = ? AND account_id = ?", contactUserID, accountID).
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

func (r *repo) AcceptContact(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contact_associations SET accepted = ?, updated_at = ? WHERE id = ?`,
		true, at, id,
	).Error
}

func (r *repo) DeleteContact(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM contact_associations WHERE id = ?`, id).Error
}

func (r *repo) ListContact(ctx context.Context, db *gorm.DB, filter associationdomain.ContactFilter) ([]*associationdomain.ContactAssociation, error) {
	query := db.WithContext(ctx).Model(&associationdomain.ContactAssociation{})
	if filter.AccountID != 0 {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.ContactUserID != 0 {
		query = query.Where("contact_user_id = ?", filter.ContactUserID)
	}
	if filter.Accepted != nil {
		query = query.Where("accepted = ?", *filter.Accepted)
	}

	var items []*associationdomain.ContactAssociation
	err := query.Order("created_at DESC").Order("id DESC").Find(&items).Error
	return items, err
}

type partyRepo struct{}

func ProvideParties() associationdomain.PartyRepository {
	return &partyRepo{}
}

func (r *partyRepo) Account(ctx context.Context, db *gorm.DB, id snowflake.ID) (*associationdomain.Party, error) {
	var row struct {
		ID            snowflake.ID
		Name          string
		AccountNumber string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, account_number FROM accounts WHERE id = ?`, id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, associationdomain.ErrAccountNotFound
	}
	label := row.Name
	if label == "" {
		label = row.AccountNumber
	}
	accountID := row.ID
	return &associationdomain.Party{ID: row.ID, Label: label, AccountID: &accountID}, nil
}

func (r *partyRepo) User(ctx context.Context, db *gorm.DB, id snowflake.ID) (*associationdomain.Party, error) {
	var row struct {
		ID        snowflake.ID
		Email     string
		FirstName string
		LastName  string
		UserType  string
		AccountID *snowflake.ID
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, first_name, last_name, user_type, account_id FROM users WHERE id = ?`, id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, associationdomain.ErrUserNotFound
	}
	label := strings.TrimSpace(row.FirstName + " " + row.LastName)
	if label == "" {
		label = row.Email
	}
	return &associationdomain.Party{ID: row.ID, Label: label, UserType: row.UserType, AccountID: row.AccountID}, nil
}
