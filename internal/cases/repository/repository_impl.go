package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() casedomain.Repository {
	return &repo{}
}

func (r *repo) NextCaseNo(ctx context.Context, db *gorm.DB) (int64, error) {
	var last int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(CAST(case_no AS INTEGER)), 0) FROM cases`,
	).Scan(&last).Error
	return last + 1, err
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *casedomain.Case) error {
	return db.WithContext(ctx).Create(c).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*casedomain.Case, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*casedomain.Case, error) {
	return r.findOne(ctx, db, "slug = ?", strings.TrimSpace(slug))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, cond string, arg any) (*casedomain.Case, error) {
	var c casedomain.Case
	err := db.WithContext(ctx).Where(cond, arg).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, casedomain.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) FindBySlugs(ctx context.Context, db *gorm.DB, slugs []string) ([]*casedomain.Case, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	var items []*casedomain.Case
	err := db.WithContext(ctx).Where("slug IN ?", slugs).Order("case_no ASC").Find(&items).Error
	return items, err
}

// List applies filter on top of db, which callers may have scoped already.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter casedomain.ListFilter) ([]*casedomain.Case, int64, error) {
	query := db.WithContext(ctx).Model(&casedomain.Case{})
	if filter.AccountID != nil {
		query = query.Where("cases.account_id = ?", *filter.AccountID)
	}
	if filter.IsActive != nil {
		query = query.Where("cases.is_active = ?", *filter.IsActive)
	}
	if !filter.IncludeArchived {
		query = query.Where("cases.is_archived = ?", false)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where(
			`(cases.case_no LIKE ? OR cases.patient_id IN (
				SELECT id FROM patients WHERE LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?))`,
			like, like, like,
		)
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

	var items []*casedomain.Case
	err := query.Order("cases.case_no DESC").Find(&items).Error
	return items, total, err
}

func (r *repo) ListInactiveBefore(ctx context.Context, db *gorm.DB, before time.Time) ([]*casedomain.Case, error) {
	var items []*casedomain.Case
	err := db.WithContext(ctx).
		Where("is_active = ? AND is_archived = ? AND updated_at < ?", false, false, before).
		Order("case_no ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&casedomain.Case{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) SetArchived(ctx context.Context, db *gorm.DB, ids []snowflake.ID, archived bool, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&casedomain.Case{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_archived": archived, "updated_at": at}).Error
}

func (r *repo) InsertPatient(ctx context.Context, db *gorm.DB, p *casedomain.Patient) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindPatient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*casedomain.Patient, error) {
	var p casedomain.Patient
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, casedomain.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) PatientsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*casedomain.Patient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []*casedomain.Patient
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

func (r *repo) InsertParent(ctx context.Context, db *gorm.DB, p *casedomain.Parent) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindParent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*casedomain.Parent, error) {
	var p casedomain.Parent
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, casedomain.ErrParentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) InsertCaseDevice(ctx context.Context, db *gorm.DB, link *casedomain.CaseDevice) error {
	return db.WithContext(ctx).Create(link).Error
}

// ActiveDevice returns nil without error when the case has no active device.
func (r *repo) ActiveDevice(ctx context.Context, db *gorm.DB, caseID snowflake.ID) (*casedomain.CaseDevice, error) {
	var items []*casedomain.CaseDevice
	err := db.WithContext(ctx).
		Where("case_id = ? AND is_active = ?", caseID, true).
		Order("created_at DESC").
		Limit(1).
		Find(&items).Error
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *repo) DeactivateDevice(ctx context.Context, db *gorm.DB, linkID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Model(&casedomain.CaseDevice{}).
		Where("id = ?", linkID).
		Updates(map[string]any{"is_active": false, "updated_at": at}).Error
}
