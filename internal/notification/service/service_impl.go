package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"text/template/parse"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/clock"
	"github.com/smallbiznis/caseline/internal/config"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/observability/metrics"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultDeliverBatch = 100
	maxAttempts         = 3
	// sendingLease bounds how long a claimed row may wait for its result.
	sendingLease = 15 * time.Minute
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    notificationdomain.Repository
	Catalog *config.NotificationCatalog
	Email   email.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    notificationdomain.Repository
	catalog *config.NotificationCatalog
	email   email.Provider
	metrics *metrics.Metrics
}

func NewService(p Params) notificationdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("notification.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		email:   p.Email,
		metrics: p.Metrics,
	}
}

func (s *Service) Notify(ctx context.Context, events ...notificationdomain.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.Enqueue(ctx, events...); err != nil {
		actions := make([]string, 0, len(events))
		for _, ev := range events {
			actions = append(actions, ev.Action)
		}
		s.log.Warn("failed to enqueue notifications",
			zap.Strings("actions", actions),
			zap.Error(err),
		)
	}
}

func (s *Service) Enqueue(ctx context.Context, events ...notificationdomain.Event) error {
	rows := make([]*notificationdomain.Notification, 0, len(events))
	now := s.clock.Now()
	for _, ev := range events {
		n, err := s.build(ev, now)
		if err != nil {
			return fmt.Errorf("%s: %w", ev.Action, err)
		}
		rows = append(rows, n)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, n := range rows {
			if err := s.repo.Insert(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, n := range rows {
		s.metrics.RecordNotificationQueued(ctx, n.Action)
	}
	return nil
}

func (s *Service) build(ev notificationdomain.Event, now time.Time) (*notificationdomain.Notification, error) {
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return nil, notificationdomain.ErrUnknownAction
	}
	if ev.ToUserID == 0 {
		return nil, notificationdomain.ErrInvalidRecipient
	}
	tmpl, ok := s.catalog.Lookup(action)
	if !ok {
		return nil, notificationdomain.ErrUnknownAction
	}

	subject, err := renderText(tmpl.Subject, ev.Context)
	if err != nil {
		return nil, err
	}
	body, err := renderHTML(tmpl.Body, ev.Context)
	if err != nil {
		return nil, err
	}

	status := notificationdomain.StatusPending
	if !tmpl.Email {
		status = notificationdomain.StatusSkipped
	}

	return &notificationdomain.Notification{
		ID:         s.genID.Generate(),
		Action:     action,
		ToUserID:   ev.ToUserID,
		FromUserID: ev.FromUserID,
		Subject:    subject,
		Body:       body,
		Context:    datatypes.JSONMap(ev.Context),
		Status:     status,
		CreatedAt:  now,
	}, nil
}

// Deliver sends up to batch pending notifications. Claimed rows are moved to
// sending and committed before any mail goes out, so a row is handed to the
// mailer at most once per attempt. A row whose send fails goes back to pending
// until it has been attempted maxAttempts times.
func (s *Service) Deliver(ctx context.Context, batch int) (notificationdomain.DeliverResult, error) {
	if batch <= 0 {
		batch = defaultDeliverBatch
	}

	var result notificationdomain.DeliverResult
	now := s.clock.Now()
	abandoned, err := s.repo.FailStale(ctx, s.db, now.Add(-sendingLease), "delivery outcome unknown")
	if err != nil {
		return result, err
	}
	if abandoned > 0 {
		s.log.Warn("notifications abandoned in sending", zap.Int64("count", abandoned))
	}
	result.Abandoned = int(abandoned)

	var rows []*notificationdomain.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.repo.ClaimPending(ctx, tx, batch)
		if err != nil {
			return err
		}
		ids := make([]snowflake.ID, 0, len(claimed))
		for _, n := range claimed {
			ids = append(ids, n.ID)
		}
		if err := s.repo.MarkSending(ctx, tx, ids, now); err != nil {
			return err
		}
		rows = claimed
		return nil
	})
	if err != nil {
		return result, err
	}
	result.Claimed = len(rows)

	var errs []error
	for _, n := range rows {
		n.Attempts++
		outcome, err := s.deliverOne(ctx, n)
		if err != nil {
			s.log.Warn("notification result not recorded",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		switch outcome {
		case notificationdomain.StatusSent:
			result.Sent++
		case notificationdomain.StatusFailed:
			result.Failed++
		default:
			result.Retried++
		}
		s.metrics.RecordNotificationDelivered(ctx, n.Action, string(outcome))
	}
	return result, errors.Join(errs...)
}

func (s *Service) deliverOne(ctx context.Context, n *notificationdomain.Notification) (notificationdomain.Status, error) {
	to, err := s.repo.RecipientEmail(ctx, s.db, n.ToUserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		reason := err.Error()
		return notificationdomain.StatusPending, errors.Join(err,
			s.repo.MarkResult(ctx, s.db, n.ID, s.retryStatus(n), &reason, nil))
	}
	if strings.TrimSpace(to) == "" {
		reason := "recipient has no email address"
		return notificationdomain.StatusFailed, s.repo.MarkResult(ctx, s.db, n.ID, notificationdomain.StatusFailed, &reason, nil)
	}

	if sendErr := s.email.Send(ctx, []string{to}, n.Subject, n.Body); sendErr != nil {
		reason := sendErr.Error()
		status := s.retryStatus(n)
		s.log.Warn("notification delivery failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("action", n.Action),
			zap.Int("attempt", n.Attempts),
			zap.Error(sendErr),
		)
		return status, s.repo.MarkResult(ctx, s.db, n.ID, status, &reason, nil)
	}

	sentAt := s.clock.Now()
	return notificationdomain.StatusSent, s.repo.MarkResult(ctx, s.db, n.ID, notificationdomain.StatusSent, nil, &sentAt)
}

func (s *Service) retryStatus(n *notificationdomain.Notification) notificationdomain.Status {
	if n.Attempts >= maxAttempts {
		return notificationdomain.StatusFailed
	}
	return notificationdomain.StatusPending
}

func (s *Service) ListForUser(ctx context.Context, req notificationdomain.ListNotificationRequest) (notificationdomain.ListNotificationResponse, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return notificationdomain.ListNotificationResponse{}, err
	}

	page := req.Pagination.Normalize()
	items, total, err := s.repo.List(ctx, s.db, notificationdomain.ListFilter{
		UserID:     p.UserID,
		UnreadOnly: req.UnreadOnly,
		Offset:     (page.Page - 1) * page.PageSize,
		Limit:      page.PageSize,
	})
	if err != nil {
		return notificationdomain.ListNotificationResponse{}, err
	}

	return notificationdomain.ListNotificationResponse{
		PageInfo:      page.Info(total),
		Notifications: items,
	}, nil
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	p, err := principal.Require(ctx)
	if err != nil {
		return err
	}
	notificationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || notificationID == 0 {
		return notificationdomain.ErrInvalidNotification
	}

	affected, err := s.repo.MarkRead(ctx, s.db, p.UserID, notificationID, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return notificationdomain.ErrNotificationNotFound
	}
	return nil
}

func renderText(source string, data map[string]any) (string, error) {
	tmpl, err := texttemplate.New("subject").Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, withBlanks(tmpl.Tree, data)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderHTML(source string, data map[string]any) (string, error) {
	tmpl, err := htmltemplate.New("body").Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, withBlanks(tmpl.Tree, data)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// withBlanks copies data and sets every top-level field the template reads
// but the event did not supply to "".
func withBlanks(tree *parse.Tree, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	if tree == nil {
		return out
	}
	collectFields(tree.Root, func(name string) {
		if v, ok := out[name]; !ok || v == nil {
			out[name] = ""
		}
	})
	return out
}

func collectFields(node parse.Node, add func(string)) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, add)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, add)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			collectFields(cmd, add)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, add)
		}
	case *parse.FieldNode:
		if len(n.Ident) == 1 {
			add(n.Ident[0])
		}
	case *parse.IfNode:
		collectBranch(&n.BranchNode, add)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, add)
	case *parse.TemplateNode:
		collectFields(n.Pipe, add)
	}
}

func collectBranch(n *parse.BranchNode, add func(string)) {
	collectFields(n.Pipe, add)
	collectFields(n.List, add)
	collectFields(n.ElseList, add)
}
