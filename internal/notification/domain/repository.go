package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	// ClaimPending locks up to limit pending rows. On postgres and mysql
	// concurrent workers skip rows another worker holds.
	ClaimPending(ctx context.Context, db *gorm.DB, limit int) ([]*Notification, error)
	// MarkSending moves claimed pending rows to sending and counts the attempt.
	MarkSending(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
	// MarkResult settles a row that is in sending.
	MarkResult(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, lastError *string, sentAt *time.Time) error
	// FailStale fails rows left in sending since before.
	FailStale(ctx context.Context, db *gorm.DB, before time.Time, reason string) (int64, error)
	RecipientEmail(ctx context.Context, db *gorm.DB, userID snowflake.ID) (string, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Notification, int64, error)
	MarkRead(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, at time.Time) (int64, error)
}
