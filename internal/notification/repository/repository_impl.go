package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"gorm.io/gorm"
)

const claimPendingSQL = `SELECT id, action, to_user_id, from_user_id, subject, body, context, status,
	attempts, last_error, is_read, created_at, claimed_at, sent_at, read_at
	FROM notifications
	WHERE status = ?
	ORDER BY created_at ASC, id ASC
	LIMIT ?`

type repo struct{}

func Provide() notificationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *notificationdomain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (
			id, action, to_user_id, from_user_id, subject, body, context, status,
			attempts, last_error, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.Action,
		n.ToUserID,
		n.FromUserID,
		n.Subject,
		n.Body,
		n.Context,
		string(n.Status),
		n.Attempts,
		n.LastError,
		n.IsRead,
		n.CreatedAt,
	).Error
}

func (r *repo) ClaimPending(ctx context.Context, db *gorm.DB, limit int) ([]*notificationdomain.Notification, error) {
	query := claimPendingSQL
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		query += " FOR UPDATE SKIP LOCKED"
	}

	var rows []*notificationdomain.Notification
	err := db.WithContext(ctx).Raw(query, string(notificationdomain.StatusPending), limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) MarkSending(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, attempts = attempts + 1, claimed_at = ?
		WHERE id IN ? AND status = ?`,
		string(notificationdomain.StatusSending), at, ids, string(notificationdomain.StatusPending),
	).Error
}

func (r *repo) MarkResult(ctx context.Context, db *gorm.DB, id snowflake.ID, status notificationdomain.Status, lastError *string, sentAt *time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, last_error = ?, sent_at = ?
		WHERE id = ? AND status = ?`,
		string(status), lastError, sentAt, id, string(notificationdomain.StatusSending),
	).Error
}

func (r *repo) FailStale(ctx context.Context, db *gorm.DB, before time.Time, reason string) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE notifications
		SET status = ?, last_error = ?
		WHERE status = ? AND claimed_at < ?`,
		string(notificationdomain.StatusFailed), reason, string(notificationdomain.StatusSending), before,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) RecipientEmail(ctx context.Context, db *gorm.DB, userID snowflake.ID) (string, error) {
	var row struct {
		Email string
	}
	result := db.WithContext(ctx).Raw(`SELECT email FROM users WHERE id = ?`, userID).Scan(&row)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", gorm.ErrRecordNotFound
	}
	return row.Email, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter notificationdomain.ListFilter) ([]*notificationdomain.Notification, int64, error) {
	query := db.WithContext(ctx).Model(&notificationdomain.Notification{}).
		Where("to_user_id = ?", filter.UserID)
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*notificationdomain.Notification
	err := query.Order("created_at DESC").Order("id DESC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE notifications SET is_read = ?, read_at = ? WHERE id = ? AND to_user_id = ?`,
		true, at, id, userID,
	)
	return result.RowsAffected, result.Error
}
