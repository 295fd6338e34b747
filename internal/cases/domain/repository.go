package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// NextCaseNo returns the highest case number plus one.
	NextCaseNo(ctx context.Context, db *gorm.DB) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, c *Case) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Case, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Case, error)
	FindBySlugs(ctx context.Context, db *gorm.DB, slugs []string) ([]*Case, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Case, int64, error)
	ListInactiveBefore(ctx context.Context, db *gorm.DB, before time.Time) ([]*Case, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	SetArchived(ctx context.Context, db *gorm.DB, ids []snowflake.ID, archived bool, at time.Time) error

	InsertPatient(ctx context.Context, db *gorm.DB, p *Patient) error
	FindPatient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Patient, error)
	PatientsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Patient, error)
	InsertParent(ctx context.Context, db *gorm.DB, p *Parent) error
	FindParent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Parent, error)

	InsertCaseDevice(ctx context.Context, db *gorm.DB, link *CaseDevice) error
	ActiveDevice(ctx context.Context, db *gorm.DB, caseID snowflake.ID) (*CaseDevice, error)
	DeactivateDevice(ctx context.Context, db *gorm.DB, linkID snowflake.ID, at time.Time) error
}
