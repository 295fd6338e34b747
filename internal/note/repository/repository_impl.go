package repository

import (
	"context"
	"errors"
	"strings"

	notedomain "github.com/smallbiznis/caseline/internal/note/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() notedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, note *notedomain.ProviderNote) error {
	return db.WithContext(ctx).Create(note).Error
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*notedomain.ProviderNote, error) {
	var note notedomain.ProviderNote
	err := db.WithContext(ctx).Where("slug = ?", strings.TrimSpace(slug)).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notedomain.ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter notedomain.ListFilter) ([]*notedomain.ProviderNote, int64, error) {
	query := db.WithContext(ctx).Model(&notedomain.ProviderNote{})
	if filter.CaseID != nil {
		query = query.Where("provider_notes.case_id = ?", *filter.CaseID)
	}
	if filter.UserID != nil {
		query = query.Where("provider_notes.user_id = ?", *filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	var items []*notedomain.ProviderNote
	err := query.Order("provider_notes.created_at DESC").Order("provider_notes.id DESC").Find(&items).Error
	return items, total, err
}
