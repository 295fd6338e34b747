package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUpload(ctx context.Context, db *gorm.DB, upload *Upload) error
	FindUpload(ctx context.Context, db *gorm.DB, slug string) (*Upload, error)
	InsertItems(ctx context.Context, db *gorm.DB, items []*UploadItem) error
	ListItems(ctx context.Context, db *gorm.DB, uploadID snowflake.ID) ([]*UploadItem, error)
	SaveItemResult(ctx context.Context, db *gorm.DB, item *UploadItem, at time.Time) error
	// DeletePending drops rows of earlier uploads of kind that were never imported.
	DeletePending(ctx context.Context, db *gorm.DB, kind Kind) (int64, error)
}
