package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Account, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Account, error)
	// List filters an already scoped query.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Account, int64, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	Children(ctx context.Context, db *gorm.DB, parentID snowflake.ID) ([]*Account, error)
	// Descendants returns every account below id, nearest levels first.
	Descendants(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]*Account, error)
	AncestorIDs(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]snowflake.ID, error)
	ReplaceAncestors(ctx context.Context, db *gorm.DB, accountID snowflake.ID, rows []Ancestor) error
	// Candidates returns accounts that are neither id, its ancestors nor its descendants.
	Candidates(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]*Account, error)
	SetActive(ctx context.Context, db *gorm.DB, ids []snowflake.ID, active bool) error
	References(ctx context.Context, db *gorm.DB, id snowflake.ID) (References, error)
}
