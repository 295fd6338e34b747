package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, note *ProviderNote) error
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*ProviderNote, error)
	// List applies filter on top of db, newest first.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ProviderNote, int64, error)
}
