package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     associationdomain.Repository
	Parties  associationdomain.PartyRepository
	Authz    authorization.Service
	Notifier notificationdomain.Dispatcher
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     associationdomain.Repository
	parties  associationdomain.PartyRepository
	authz    authorization.Service
	notifier notificationdomain.Dispatcher
}

func NewService(p ServiceParam) associationdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("association.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		parties:  p.Parties,
		authz:    p.Authz,
		notifier: p.Notifier,
	}
}

func (s *Service) RequestAccount(ctx context.Context, toAccountID snowflake.ID) (*associationdomain.AccountAssociation, error) {
	p, err := s.caller(ctx, authorization.ActionAccountAssociate)
	if err != nil {
		return nil, err
	}
	if toAccountID == 0 {
		return nil, associationdomain.ErrInvalidAccount
	}
	if toAccountID == p.AccountID {
		return nil, associationdomain.ErrSelfAssociation
	}

	from, err := s.parties.Account(ctx, s.db, p.AccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.parties.Account(ctx, s.db, toAccountID)
	if err != nil {
		return nil, err
	}
	admin, err := s.requireAdmin(ctx, to)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindAccountPair(ctx, s.db, from.ID, to.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, associationdomain.ErrAssociationExists
	}

	now := s.clock.Now()
	requestedBy := p.UserID
	item := &associationdomain.AccountAssociation{
		ID:            s.genID.Generate(),
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		RequestedBy:   &requestedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertAccount(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.notify(ctx, notificationdomain.Event{
		Action:     "Account Association Request",
		ToUserID:   admin,
		FromUserID: &requestedBy,
		Context:    accountContext(from, to),
	})
	return item, nil
}

func (s *Service) RequestViaAdmin(ctx context.Context, toAccountID snowflake.ID) error {
	p, err := s.caller(ctx, authorization.ActionAccountRequestAssociate)
	if err != nil {
		return err
	}
	if toAccountID == 0 {
		return associationdomain.ErrInvalidAccount
	}
	if toAccountID == p.AccountID {
		return associationdomain.ErrSelfAssociation
	}

	from, err := s.parties.Account(ctx, s.db, p.AccountID)
	if err != nil {
		return err
	}
	to, err := s.parties.Account(ctx, s.db, toAccountID)
	if err != nil {
		return err
	}
	admin, err := s.requireAdmin(ctx, from)
	if err != nil {
		return err
	}
	requester, err := s.parties.User(ctx, s.db, p.UserID)
	if err != nil {
		return err
	}

	data := accountContext(from, to)
	data["requested_by"] = requester.Label
	s.notify(ctx, notificationdomain.Event{
		Action:     "Account Association Request to Admin",
		ToUserID:   admin,
		FromUserID: &requester.ID,
		Context:    data,
	})
	return nil
}

// AcceptAccount is only allowed on the receiving side of the request.
func (s *Service) AcceptAccount(ctx context.Context, id snowflake.ID) (*associationdomain.AccountAssociation, error) {
	p, err := s.caller(ctx, authorization.ActionAccountAssociate)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindAccount(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !p.IsSuperuser && item.ToAccountID != p.AccountID {
		return nil, authorization.ErrForbidden
	}
	if item.Accepted {
		return nil, associationdomain.ErrAlreadyAccepted
	}

	from, to, err := s.accountPair(ctx, item)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.AcceptAccount(ctx, s.db, item.ID, now); err != nil {
		return nil, err
	}
	item.Accepted = true
	item.UpdatedAt = now

	data := accountContext(from, to)
	if requester := s.requesterOf(ctx, item); requester != 0 {
		s.notify(ctx, notificationdomain.Event{
			Action:     "Account Association Accepted",
			ToUserID:   requester,
			FromUserID: userRef(p),
			Context:    data,
		})
	}
	s.notifyAdmins(ctx, "Account Associated", data, from.ID, to.ID)
	return item, nil
}

// RemoveAccount revokes, rejects or dissolves an association depending on
// which side asks and whether it was accepted.
func (s *Service) RemoveAccount(ctx context.Context, id snowflake.ID) error {
	p, err := s.caller(ctx, authorization.ActionAccountAssociate)
	if err != nil {
		return err
	}
	item, err := s.repo.FindAccount(ctx, s.db, id)
	if err != nil {
		return err
	}
	fromSide := item.FromAccountID == p.AccountID
	toSide := item.ToAccountID == p.AccountID
	if !fromSide && !toSide && !p.IsSuperuser {
		return authorization.ErrForbidden
	}

	from, to, err := s.accountPair(ctx, item)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAccount(ctx, s.db, item.ID); err != nil {
		return err
	}

	data := accountContext(from, to)
	switch {
	case item.Accepted:
		s.notifyAdmins(ctx, "Account Dissociated", data, from.ID, to.ID)
	case toSide:
		if requester := s.requesterOf(ctx, item); requester != 0 {
			s.notify(ctx, notificationdomain.Event{
				Action:     "Account Association Rejected",
				ToUserID:   requester,
				FromUserID: userRef(p),
				Context:    data,
			})
		}
	default:
		s.notifyAdmins(ctx, "Account Association Revoked", data, to.ID)
	}
	return nil
}

func (s *Service) ListAccounts(ctx context.Context, accepted *bool) ([]*associationdomain.AccountAssociation, error) {
	p, err := s.caller(ctx, authorization.ActionAccountListAssociated)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAccount(ctx, s.db, associationdomain.AccountFilter{
		AccountID: p.AccountID,
		Accepted:  accepted,
	})
}

func (s *Service) Associated(ctx context.Context, accountID snowflake.ID) ([]snowflake.ID, error) {
	if accountID == 0 {
		return nil, associationdomain.ErrInvalidAccount
	}
	return s.repo.AssociatedAccountIDs(ctx, s.db, accountID)
}

func (s *Service) RequestContact(ctx context.Context, contactUserID snowflake.ID) (*associationdomain.ContactAssociation, error) {
	p, err := s.caller(ctx, authorization.ActionContactAssociate)
	if err != nil {
		return nil, err
	}
	contact, account, err := s.contactTarget(ctx, p, contactUserID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindContactPair(ctx, s.db, contact.ID, account.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, associationdomain.ErrAssociationExists
	}

	now := s.clock.Now()
	item := &associationdomain.ContactAssociation{
		ID:            s.genID.Generate(),
		ContactUserID: contact.ID,
		AccountID:     account.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertContact(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.notify(ctx, notificationdomain.Event{
		Action:     "Contact Association Request",
		ToUserID:   contact.ID,
		FromUserID: userRef(p),
		Context:    contactContext(contact, account),
	})
	return item, nil
}

func (s *Service) RequestContactViaAdmin(ctx context.Context, contactUserID snowflake.ID) error {
	p, err := s.caller(ctx, authorization.ActionAccountRequestAssociate)
	if err != nil {
		return err
	}
	contact, account, err := s.contactTarget(ctx, p, contactUserID)
	if err != nil {
		return err
	}
	admin, err := s.requireAdmin(ctx, account)
	if err != nil {
		return err
	}
	requester, err := s.parties.User(ctx, s.db, p.UserID)
	if err != nil {
		return err
	}

	data := contactContext(contact, account)
	data["requested_by"] = requester.Label
	s.notify(ctx, notificationdomain.Event{
		Action:     "Contact Association Request to Admin",
		ToUserID:   admin,
		FromUserID: &requester.ID,
		Context:    data,
	})
	return nil
}

func (s *Service) InviteContact(ctx context.Context, contactUserID snowflake.ID) error {
	p, err := s.caller(ctx, authorization.ActionContactAssociate)
	if err != nil {
		return err
	}
	contact, account, err := s.contactTarget(ctx, p, contactUserID)
	if err != nil {
		return err
	}
	if _, err := s.requireAdmin(ctx, account); err != nil {
		return err
	}

	s.notify(ctx, notificationdomain.Event{
		Action:     "Contact Association Invite",
		ToUserID:   contact.ID,
		FromUserID: userRef(p),
		Context:    contactContext(contact, account),
	})
	return nil
}

// contactTarget loads a contact user and the caller's account.
func (s *Service) contactTarget(ctx context.Context, p principal.Principal, contactUserID snowflake.ID) (*associationdomain.Party, *associationdomain.Party, error) {
	if contactUserID == 0 {
		return nil, nil, associationdomain.ErrInvalidUser
	}
	contact, err := s.parties.User(ctx, s.db, contactUserID)
	if err != nil {
		return nil, nil, err
	}
	if contact.UserType != principal.UserTypeContact {
		return nil, nil, associationdomain.ErrNotContact
	}
	account, err := s.parties.Account(ctx, s.db, p.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return contact, account, nil
}

// AcceptContact is only allowed for the contact the request was sent to.
func (s *Service) AcceptContact(ctx context.Context, id snowflake.ID) (*associationdomain.ContactAssociation, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindContact(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !p.IsSuperuser && item.ContactUserID != p.UserID {
		return nil, authorization.ErrForbidden
	}
	if item.Accepted {
		return nil, associationdomain.ErrAlreadyAccepted
	}

	contact, account, err := s.contactPair(ctx, item)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.repo.AcceptContact(ctx, s.db, item.ID, now); err != nil {
		return nil, err
	}
	item.Accepted = true
	item.UpdatedAt = now

	data := contactContext(contact, account)
	s.notifyAdmins(ctx, "Contact Association Accepted", data, account.ID)
	s.notify(ctx, notificationdomain.Event{
		Action:   "Contact Associated",
		ToUserID: contact.ID,
		Context:  data,
	})
	return item, nil
}

func (s *Service) RemoveContact(ctx context.Context, id snowflake.ID) error {
	p, err := principal.Require(ctx)
	if err != nil {
		return err
	}
	item, err := s.repo.FindContact(ctx, s.db, id)
	if err != nil {
		return err
	}

	contactSide := item.ContactUserID == p.UserID
	if !contactSide && !p.IsSuperuser {
		if item.AccountID != p.AccountID {
			return authorization.ErrForbidden
		}
		if err := s.authz.Check(ctx, p, authorization.ActionContactAssociate, nil); err != nil {
			return err
		}
	}

	contact, account, err := s.contactPair(ctx, item)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteContact(ctx, s.db, item.ID); err != nil {
		return err
	}

	data := contactContext(contact, account)
	switch {
	case contactSide && item.Accepted:
		s.notifyAdmins(ctx, "Contact Dissociated", data, account.ID)
	case contactSide:
		s.notifyAdmins(ctx, "Contact Association Rejected", data, account.ID)
	case item.Accepted:
		s.notify(ctx, notificationdomain.Event{Action: "Contact Dissociated", ToUserID: contact.ID, FromUserID: userRef(p), Context: data})
	default:
		s.notify(ctx, notificationdomain.Event{Action: "Contact Association Revoked", ToUserID: contact.ID, FromUserID: userRef(p), Context: data})
	}
	return nil
}

// ListContacts lists the contacts of the caller's account, or for a Contact
// user the accounts it is associated with.
func (s *Service) ListContacts(ctx context.Context, accepted *bool) ([]*associationdomain.ContactAssociation, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	filter := associationdomain.ContactFilter{Accepted: accepted}
	if p.UserType == principal.UserTypeContact {
		filter.ContactUserID = p.UserID
	} else {
		if err := s.authz.Check(ctx, p, authorization.ActionContactAssociate, nil); err != nil {
			return nil, err
		}
		filter.AccountID = p.AccountID
	}
	return s.repo.ListContact(ctx, s.db, filter)
}

// caller returns the principal after checking action. Association
// operations act on behalf of the caller's account, so one is required.
func (s *Service) caller(ctx context.Context, action authorization.Action) (principal.Principal, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return principal.Principal{}, err
	}
	if err := s.authz.Check(ctx, p, action, nil); err != nil {
		return principal.Principal{}, err
	}
	if !p.HasAccount() && !p.IsSuperuser {
		return principal.Principal{}, associationdomain.ErrInvalidAccount
	}
	return p, nil
}

func (s *Service) requireAdmin(ctx context.Context, account *associationdomain.Party) (snowflake.ID, error) {
	admin, err := s.authz.AccountAdmin(ctx, account.ID)
	if errors.Is(err, authorization.ErrNoAccountAdmin) {
		return 0, apperr.Conflict("Account Admin of %s does not exist", account.Label)
	}
	return admin, err
}

func (s *Service) accountPair(ctx context.Context, item *associationdomain.AccountAssociation) (*associationdomain.Party, *associationdomain.Party, error) {
	from, err := s.parties.Account(ctx, s.db, item.FromAccountID)
	if err != nil {
		return nil, nil, err
	}
	to, err := s.parties.Account(ctx, s.db, item.ToAccountID)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (s *Service) contactPair(ctx context.Context, item *associationdomain.ContactAssociation) (*associationdomain.Party, *associationdomain.Party, error) {
	contact, err := s.parties.User(ctx, s.db, item.ContactUserID)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.parties.Account(ctx, s.db, item.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return contact, account, nil
}

// requesterOf falls back to the admin of the requesting account for rows
// without a recorded requester.
func (s *Service) requesterOf(ctx context.Context, item *associationdomain.AccountAssociation) snowflake.ID {
	if item.RequestedBy != nil {
		return *item.RequestedBy
	}
	admin, err := s.authz.AccountAdmin(ctx, item.FromAccountID)
	if err != nil {
		return 0
	}
	return admin
}

func (s *Service) notifyAdmins(ctx context.Context, action string, data map[string]any, accountIDs ...snowflake.ID) {
	for _, accountID := range accountIDs {
		admin, err := s.authz.AccountAdmin(ctx, accountID)
		if err != nil {
			if !errors.Is(err, authorization.ErrNoAccountAdmin) {
				s.log.Warn("account admin lookup failed", zap.String("account_id", accountID.String()), zap.Error(err))
			}
			continue
		}
		s.notify(ctx, notificationdomain.Event{Action: action, ToUserID: admin, Context: data})
	}
}

func (s *Service) notify(ctx context.Context, events ...notificationdomain.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, events...)
}

func accountContext(from, to *associationdomain.Party) map[string]any {
	return map[string]any{
		"from_account": from.Label,
		"to_account":   to.Label,
	}
}

func contactContext(contact, account *associationdomain.Party) map[string]any {
	return map[string]any{
		"contact": contact.Label,
		"account": account.Label,
	}
}

func userRef(p principal.Principal) *snowflake.ID {
	if p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}
