package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	interpretationdomain "github.com/smallbiznis/caseline/internal/interpretation/domain"
	"gorm.io/gorm"
)

const day = 24 * time.Hour

type repo struct{}

func Provide() interpretationdomain.Repository {
	return &repo{}
}

func (r *repo) LockCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) error {
	query := `SELECT id FROM cases WHERE id = ?`
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		query += " FOR UPDATE"
	}
	var id snowflake.ID
	return db.WithContext(ctx).Raw(query, caseID).Scan(&id).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *interpretationdomain.Interpretation) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*interpretationdomain.Interpretation, error) {
	var item interpretationdomain.Interpretation
	err := db.WithContext(ctx).Where("slug = ?", strings.TrimSpace(slug)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interpretationdomain.ErrInterpretationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*interpretationdomain.Interpretation, error) {
	var items []*interpretationdomain.Interpretation
	err := db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("date_from ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) Approve(ctx context.Context, db *gorm.DB, id, by snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&interpretationdomain.Interpretation{}).
		Where("id = ? AND is_approved = ?", id, false).
		Updates(map[string]any{
			"is_approved": true,
			"approved_by": by,
			"approved_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) InsertEvents(ctx context.Context, db *gorm.DB, events []*interpretationdomain.CaseEvent) error {
	if len(events) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&events).Error
}

func (r *repo) CountEvents(ctx context.Context, db *gorm.DB, caseID snowflake.ID, from, to time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&interpretationdomain.CaseEvent{}).
		Where("case_id = ? AND occurred_at >= ? AND occurred_at < ?", caseID, from, to.Add(day)).
		Count(&n).Error
	return n, err
}

func (r *repo) MarkInterpreted(ctx context.Context, db *gorm.DB, caseID snowflake.ID, from, to time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&interpretationdomain.CaseEvent{}).
		Where("case_id = ? AND occurred_at >= ? AND occurred_at < ?", caseID, from, to.Add(day)).
		Update("is_interpreted", true)
	return res.RowsAffected, res.Error
}

func (r *repo) PendingRange(ctx context.Context, db *gorm.DB, caseID snowflake.ID) (*time.Time, *time.Time, error) {
	var events []*interpretationdomain.CaseEvent
	err := db.WithContext(ctx).
		Where("case_id = ? AND is_interpreted = ?", caseID, false).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil || len(events) == 0 {
		return nil, nil, err
	}
	first, last := events[0].OccurredAt, events[len(events)-1].OccurredAt
	return &first, &last, nil
}
