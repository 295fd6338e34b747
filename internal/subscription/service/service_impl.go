package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	"github.com/smallbiznis/caseline/pkg/dates"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultExpireBatch = 100

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	Authz    authorization.Service
	Notifier notificationdomain.Dispatcher
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	authz    authorization.Service
	notifier notificationdomain.Dispatcher
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		authz:    p.Authz,
		notifier: p.Notifier,
	}
}

func (s *Service) Current(ctx context.Context, accountID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	if accountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}
	current, err := s.repo.FindCurrent(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, subscriptiondomain.ErrNoCurrentSubscription
	}
	return current, nil
}

func (s *Service) CurrentMany(ctx context.Context, accountIDs []snowflake.ID) (map[snowflake.ID]*subscriptiondomain.UserSubscription, error) {
	return s.repo.FindCurrentMany(ctx, s.db, accountIDs)
}

func (s *Service) Summary(ctx context.Context, accountID snowflake.ID) (subscriptiondomain.Summary, error) {
	if accountID == 0 {
		return subscriptiondomain.Summary{}, subscriptiondomain.ErrInvalidAccount
	}
	current, err := s.repo.FindCurrent(ctx, s.db, accountID)
	if err != nil {
		return subscriptiondomain.Summary{}, err
	}
	users, err := s.repo.CountUsers(ctx, s.db, accountID)
	if err != nil {
		return subscriptiondomain.Summary{}, err
	}
	devices, err := s.repo.CountDevices(ctx, s.db, accountID)
	if err != nil {
		return subscriptiondomain.Summary{}, err
	}

	summary := subscriptiondomain.Summary{
		Current:                current,
		NumUserSubscriptions:   users,
		NumDeviceSubscriptions: devices,
	}
	if current != nil {
		limit := current.NumOfUsers
		summary.MaxUserSubscriptions = &limit
	}
	return summary, nil
}

func (s *Service) History(ctx context.Context, accountID snowflake.ID) ([]*subscriptiondomain.UserSubscription, error) {
	if accountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}
	return s.repo.ListByAccount(ctx, s.db, accountID)
}

func (s *Service) MaxUsers(ctx context.Context, accountID snowflake.ID) (int, error) {
	current, err := s.Current(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return current.NumOfUsers, nil
}

// Create inserts an active subscription and stamps the subscription start on
// devices of the account that have none.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (*subscriptiondomain.UserSubscription, error) {
	if req.AccountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}
	start, end, err := parsePeriod(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	users, err := numOfUsers(req.NumOfUsers)
	if err != nil {
		return nil, err
	}

	sub := s.newSubscription(req.AccountID, start, end, users)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, sub); err != nil {
			return err
		}
		return s.repo.StampDeviceStartDate(ctx, tx, req.AccountID, start)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("account_id", req.AccountID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.Int("num_of_users", users),
	)
	return sub, nil
}

// Update replaces the current subscription with a copy carrying the new
// number of users.
func (s *Service) Update(ctx context.Context, req subscriptiondomain.UpdateSubscriptionRequest) (*subscriptiondomain.UserSubscription, error) {
	users, err := numOfUsers(req.NumOfUsers)
	if err != nil {
		return nil, err
	}
	current, err := s.Current(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	sub := s.newSubscription(req.AccountID, current.StartDate, current.EndDate, users)
	if err := s.replace(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Renew starts a new period the day after the subscription covering today ends.
func (s *Service) Renew(ctx context.Context, req subscriptiondomain.RenewSubscriptionRequest) (*subscriptiondomain.UserSubscription, error) {
	if req.AccountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}
	users, err := numOfUsers(req.NumOfUsers)
	if err != nil {
		return nil, err
	}
	end, err := dates.Parse(req.EndDate)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidDate
	}

	history, err := s.repo.ListByAccount(ctx, s.db, req.AccountID)
	if err != nil {
		return nil, err
	}
	today := clock.Today(s.clock)
	var covering *subscriptiondomain.UserSubscription
	for _, item := range history {
		if item.Covers(today) {
			covering = item
			break
		}
	}
	if covering == nil {
		return nil, subscriptiondomain.ErrNoCoveringToday
	}

	start := dates.Day(covering.EndDate).AddDate(0, 0, 1)
	if end.Before(start) {
		return nil, subscriptiondomain.ErrInvalidPeriod
	}

	sub := s.newSubscription(req.AccountID, start, end, users)
	if err := s.replace(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel cancels the current subscription and deactivates the account. An
// account without a current subscription is left untouched.
func (s *Service) Cancel(ctx context.Context, accountID snowflake.ID) error {
	if accountID == 0 {
		return subscriptiondomain.ErrInvalidAccount
	}
	current, err := s.repo.FindCurrent(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	number, err := s.repo.AccountNumber(ctx, s.db, accountID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Cancel(ctx, tx, current.ID); err != nil {
			return err
		}
		return s.repo.DeactivateAccount(ctx, tx, accountID)
	})
	if err != nil {
		return err
	}

	s.notifyAdmin(ctx, accountID, "Subscription Cancelled", map[string]any{
		"account_number": number,
	})
	return nil
}

func (s *Service) CreateDevice(ctx context.Context, req subscriptiondomain.CreateDeviceSubscriptionRequest) (*subscriptiondomain.DeviceSubscription, error) {
	if req.AccountID == 0 {
		return nil, subscriptiondomain.ErrInvalidAccount
	}
	end, err := dates.Parse(req.EndDate)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidDate
	}
	sub := &subscriptiondomain.DeviceSubscription{
		ID:        s.genID.Generate(),
		AccountID: req.AccountID,
		EndDate:   end,
		CreatedAt: s.clock.Now(),
	}
	if req.StartDate != "" {
		start, err := dates.Parse(req.StartDate)
		if err != nil {
			return nil, subscriptiondomain.ErrInvalidDate
		}
		if end.Before(start) {
			return nil, subscriptiondomain.ErrInvalidPeriod
		}
		sub.StartDate = &start
	}

	if err := s.repo.InsertDevice(ctx, s.db, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultExpireBatch
	}
	expired, err := s.repo.ListExpired(ctx, s.db, dates.Day(now), limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, sub := range expired {
		if err := s.repo.Deactivate(ctx, s.db, sub.ID); err != nil {
			return count, err
		}
		count++

		number, err := s.repo.AccountNumber(ctx, s.db, sub.AccountID)
		if err != nil {
			s.log.Warn("expired subscription account lookup failed",
				zap.String("account_id", sub.AccountID.String()),
				zap.Error(err),
			)
			continue
		}
		s.notifyAdmin(ctx, sub.AccountID, "Subscription Expired", map[string]any{
			"account_number": number,
			"end_date":       dates.Format(sub.EndDate),
		})
	}
	return count, nil
}

func (s *Service) replace(ctx context.Context, sub *subscriptiondomain.UserSubscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeactivateActive(ctx, tx, sub.AccountID); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, sub)
	})
}

func (s *Service) newSubscription(accountID snowflake.ID, start, end time.Time, users int) *subscriptiondomain.UserSubscription {
	return &subscriptiondomain.UserSubscription{
		ID:         s.genID.Generate(),
		AccountID:  accountID,
		StartDate:  start,
		EndDate:    end,
		NumOfUsers: users,
		IsActive:   true,
		CreatedAt:  s.clock.Now(),
	}
}

func (s *Service) notifyAdmin(ctx context.Context, accountID snowflake.ID, action string, data map[string]any) {
	if s.notifier == nil || s.authz == nil {
		return
	}
	admin, err := s.authz.AccountAdmin(ctx, accountID)
	if err != nil {
		if !errors.Is(err, authorization.ErrNoAccountAdmin) {
			s.log.Warn("account admin lookup failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
		return
	}
	s.notifier.Notify(ctx, notificationdomain.Event{
		Action:   action,
		ToUserID: admin,
		Context:  data,
	})
}

func parsePeriod(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := dates.Parse(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, subscriptiondomain.ErrInvalidDate
	}
	end, err := dates.Parse(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, subscriptiondomain.ErrInvalidDate
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, subscriptiondomain.ErrInvalidPeriod
	}
	return start, end, nil
}

// numOfUsers defaults a missing count to zero.
func numOfUsers(raw *int) (int, error) {
	if raw == nil {
		return 0, nil
	}
	if *raw < 0 {
		return 0, subscriptiondomain.ErrInvalidUsers
	}
	return *raw, nil
}
