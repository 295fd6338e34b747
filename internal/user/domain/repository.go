package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	// List expects db to be scoped already.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*User, int64, error)
	ListByAccounts(ctx context.Context, db *gorm.DB, accountIDs []snowflake.ID) ([]*User, error)
	ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*User, error)
	CountByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	Account(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*AccountInfo, error)
}
