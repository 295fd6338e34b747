package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	EnsureType(ctx context.Context, db *gorm.DB, t *NotificationType) (*NotificationType, error)
	ListTypes(ctx context.Context, db *gorm.DB) ([]*NotificationType, error)

	// EnsureDefault inserts entry unless its (role, type) pair exists.
	EnsureDefault(ctx context.Context, db *gorm.DB, entry *DefaultEntry) error
	ListDefault(ctx context.Context, db *gorm.DB) ([]*DefaultEntry, error)
	UpdateDefault(ctx context.Context, db *gorm.DB, roleID, typeID snowflake.ID, notified bool, at time.Time) (bool, error)

	InsertCase(ctx context.Context, db *gorm.DB, entries []*CaseEntry) error
	ListCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*CaseEntry, error)
	UpdateCase(ctx context.Context, db *gorm.DB, caseID, roleID, typeID snowflake.ID, notified bool, at time.Time) (bool, error)
	// Recipients returns the holders of the roles notified of typeName on the case.
	Recipients(ctx context.Context, db *gorm.DB, caseID snowflake.ID, typeName string) ([]snowflake.ID, error)
}
