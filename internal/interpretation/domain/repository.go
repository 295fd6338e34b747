package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// LockCase serializes interpretation writes of one case.
	LockCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) error
	Insert(ctx context.Context, db *gorm.DB, item *Interpretation) error
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Interpretation, error)
	ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*Interpretation, error)
	Approve(ctx context.Context, db *gorm.DB, id, by snowflake.ID, at time.Time) (bool, error)

	InsertEvents(ctx context.Context, db *gorm.DB, events []*CaseEvent) error
	// CountEvents counts events whose day falls in [from, to].
	CountEvents(ctx context.Context, db *gorm.DB, caseID snowflake.ID, from, to time.Time) (int64, error)
	MarkInterpreted(ctx context.Context, db *gorm.DB, caseID snowflake.ID, from, to time.Time) (int64, error)
	// PendingRange returns the first and last uninterpreted events, or nil.
	PendingRange(ctx context.Context, db *gorm.DB, caseID snowflake.ID) (*time.Time, *time.Time, error)
}
