package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/caseline/pkg/db/pagination"
)

type ListNotificationRequest struct {
	pagination.Pagination
	UnreadOnly bool `form:"unread_only"`
}

type ListNotificationResponse struct {
	pagination.PageInfo
	Notifications []*Notification `json:"notifications"`
}

type DeliverResult struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Retried int `json:"retried"`
	// Abandoned rows stayed in sending past the lease and were failed
	// instead of being sent again.
	Abandoned int `json:"abandoned"`
}

// Dispatcher is the narrow interface domain services depend on.
type Dispatcher interface {
	// Notify enqueues events and logs failures; it never fails the caller.
	Notify(ctx context.Context, events ...Event)
}

type Service interface {
	Dispatcher
	Enqueue(ctx context.Context, events ...Event) error
	Deliver(ctx context.Context, batch int) (DeliverResult, error)
	ListForUser(ctx context.Context, req ListNotificationRequest) (ListNotificationResponse, error)
	MarkRead(ctx context.Context, id string) error
}

var (
	ErrUnknownAction        = errors.New("unknown_notification_action")
	ErrInvalidRecipient     = errors.New("invalid_recipient")
	ErrInvalidNotification  = errors.New("invalid_notification")
	ErrNotificationNotFound = errors.New("notification_not_found")
)
