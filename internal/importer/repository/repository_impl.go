package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	importerdomain "github.com/smallbiznis/caseline/internal/importer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() importerdomain.Repository {
	return &repo{}
}

func (r *repo) InsertUpload(ctx context.Context, db *gorm.DB, upload *importerdomain.Upload) error {
	return db.WithContext(ctx).Create(upload).Error
}

func (r *repo) FindUpload(ctx context.Context, db *gorm.DB, slug string) (*importerdomain.Upload, error) {
	var upload importerdomain.Upload
	err := db.WithContext(ctx).Where("slug = ?", strings.TrimSpace(slug)).First(&upload).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, importerdomain.ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []*importerdomain.UploadItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(items, 200).Error
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, uploadID snowflake.ID) ([]*importerdomain.UploadItem, error) {
	var items []*importerdomain.UploadItem
	err := db.WithContext(ctx).Where("upload_id = ?", uploadID).Order("row_no ASC").Find(&items).Error
	return items, err
}

func (r *repo) SaveItemResult(ctx context.Context, db *gorm.DB, item *importerdomain.UploadItem, at time.Time) error {
	return db.WithContext(ctx).Model(&importerdomain.UploadItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"is_imported": item.IsImported,
			"errors":      item.Errors,
			"updated_at":  at,
		}).Error
}

func (r *repo) DeletePending(ctx context.Context, db *gorm.DB, kind importerdomain.Kind) (int64, error) {
	res := db.WithContext(ctx).
		Where("is_imported = ? AND upload_id IN (?)", false,
			db.Session(&gorm.Session{NewDB: true}).Model(&importerdomain.Upload{}).Select("id").Where("kind = ?", kind),
		).
		Delete(&importerdomain.UploadItem{})
	return res.RowsAffected, res.Error
}
