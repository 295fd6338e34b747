package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	"github.com/smallbiznis/caseline/internal/association/repository"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authzStub struct {
	authorization.Service
	admins map[snowflake.ID]snowflake.ID
	deny   map[authorization.Action]bool
}

func (a authzStub) Check(_ context.Context, _ principal.Principal, action authorization.Action, _ *authorization.Target) error {
	if a.deny[action] {
		return authorization.ErrForbidden
	}
	return nil
}

func (a authzStub) AccountAdmin(_ context.Context, accountID snowflake.ID) (snowflake.ID, error) {
	if id, ok := a.admins[accountID]; ok {
		return id, nil
	}
	return 0, authorization.ErrNoAccountAdmin
}

type notifierStub struct {
	mu     sync.Mutex
	events []notificationdomain.Event
}

func (n *notifierStub) Notify(_ context.Context, events ...notificationdomain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *notifierStub) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Action+"->"+e.ToUserID.String())
	}
	return out
}

func (n *notifierStub) reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}

// Accounts 1 (admin 10), 2 (admin 20), 3 (no admin). User 11 is a plain
// user of 1; users 90 and 91 are contacts.
func newFixture(t *testing.T, authz authzStub) (*Service, *notifierStub) {
	t.Helper()

	conn, err := db.NewTest(&associationdomain.AccountAssociation{}, &associationdomain.ContactAssociation{})
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE accounts (id INTEGER PRIMARY KEY, name TEXT, account_number TEXT)`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT, first_name TEXT, last_name TEXT, user_type TEXT, account_id INTEGER)`,
		`INSERT INTO accounts VALUES (1, 'North Clinic', 'N-1'), (2, 'South Clinic', 'S-2'), (3, '', 'E-3')`,
		`INSERT INTO users VALUES
			(10, 'a@north.test', 'Ana', 'North', 'User', 1),
			(11, 'u@north.test', 'Uma', 'North', 'User', 1),
			(20, 'a@south.test', 'Sam', 'South', 'User', 2),
			(90, 'c@mail.test', 'Cora', 'Contact', 'Contact', NULL),
			(91, 'd@mail.test', '', '', 'User', NULL)`,
	} {
		require.NoError(t, conn.Exec(stmt).Error, stmt)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	if authz.admins == nil {
		authz.admins = map[snowflake.ID]snowflake.ID{1: 10, 2: 20}
	}
	notifier := &notifierStub{}
	svc := NewService(ServiceParam{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Parties:  repository.ProvideParties(),
		Authz:    authz,
		Notifier: notifier,
	})
	return svc.(*Service), notifier
}

func as(userID, accountID snowflake.ID) context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:    userID,
		AccountID: accountID,
		UserType:  principal.UserTypeUser,
	})
}

func contact(userID snowflake.ID) context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:   userID,
		UserType: principal.UserTypeContact,
	})
}

func TestRequestAndAcceptAccount(t *testing.T) {
	svc, notifier := newFixture(t, authzStub{})

	item, err := svc.RequestAccount(as(10, 1), 2)
	require.NoError(t, err)
	assert.False(t, item.Accepted)
	assert.Equal(t, []string{"Account Association Request->20"}, notifier.sent())
	assert.Equal(t, "North Clinic", notifier.events[0].Context["from_account"])

	_, err = svc.RequestAccount(as(20, 2), 1)
	assert.ErrorIs(t, err, associationdomain.ErrAssociationExists)

	_, err = svc.AcceptAccount(as(10, 1), item.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	notifier.reset()
	accepted, err := svc.AcceptAccount(as(20, 2), item.ID)
	require.NoError(t, err)
	assert.True(t, accepted.Accepted)
	assert.Equal(t, []string{
		"Account Association Accepted->10",
		"Account Associated->10",
		"Account Associated->20",
	}, notifier.sent())

	_, err = svc.AcceptAccount(as(20, 2), item.ID)
	assert.ErrorIs(t, err, associationdomain.ErrAlreadyAccepted)

	partners, err := svc.Associated(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{1}, partners)
}

func TestRequestAccountValidation(t *testing.T) {
	svc, _ := newFixture(t, authzStub{})

	_, err := svc.RequestAccount(as(10, 1), 1)
	assert.ErrorIs(t, err, associationdomain.ErrSelfAssociation)

	_, err = svc.RequestAccount(as(10, 1), 3)
	conflict, ok := apperr.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, "Account Admin of E-3 does not exist", conflict.Message)

	_, err = svc.RequestAccount(as(10, 1), 99)
	assert.ErrorIs(t, err, associationdomain.ErrAccountNotFound)

	_, err = svc.RequestAccount(context.Background(), 2)
	assert.ErrorIs(t, err, principal.ErrUnauthenticated)

	denied, _ := newFixture(t, authzStub{deny: map[authorization.Action]bool{authorization.ActionAccountAssociate: true}})
	_, err = denied.RequestAccount(as(11, 1), 2)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestRemoveAccountNotifiesBySide(t *testing.T) {
	cases := []struct {
		name     string
		accept   bool
		remover  context.Context
		expected []string
	}{
		{"requester revokes", false, as(10, 1), []string{"Account Association Revoked->20"}},
		{"receiver rejects", false, as(20, 2), []string{"Account Association Rejected->10"}},
		{"dissociate", true, as(20, 2), []string{"Account Dissociated->10", "Account Dissociated->20"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, notifier := newFixture(t, authzStub{})
			item, err := svc.RequestAccount(as(10, 1), 2)
			require.NoError(t, err)
			if tc.accept {
				_, err = svc.AcceptAccount(as(20, 2), item.ID)
				require.NoError(t, err)
			}
			notifier.reset()

			require.NoError(t, svc.RemoveAccount(tc.remover, item.ID))
			assert.Equal(t, tc.expected, notifier.sent())

			err = svc.RemoveAccount(tc.remover, item.ID)
			assert.ErrorIs(t, err, associationdomain.ErrAssociationNotFound)
		})
	}
}

func TestRemoveAccountOutsiderForbidden(t *testing.T) {
	svc, _ := newFixture(t, authzStub{})
	item, err := svc.RequestAccount(as(10, 1), 2)
	require.NoError(t, err)

	err = svc.RemoveAccount(as(30, 3), item.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestRequestViaAdmin(t *testing.T) {
	svc, notifier := newFixture(t, authzStub{})

	require.NoError(t, svc.RequestViaAdmin(as(11, 1), 2))
	require.Len(t, notifier.events, 1)
	event := notifier.events[0]
	assert.Equal(t, "Account Association Request to Admin", event.Action)
	assert.Equal(t, snowflake.ID(10), event.ToUserID)
	assert.Equal(t, "Uma North", event.Context["requested_by"])

	noAdmin, _ := newFixture(t, authzStub{admins: map[snowflake.ID]snowflake.ID{2: 20}})
	err := noAdmin.RequestViaAdmin(as(11, 1), 2)
	_, ok := apperr.AsConflict(err)
	assert.True(t, ok)
}

func TestListAccounts(t *testing.T) {
	svc, _ := newFixture(t, authzStub{})
	first, err := svc.RequestAccount(as(10, 1), 2)
	require.NoError(t, err)
	_, err = svc.AcceptAccount(as(20, 2), first.ID)
	require.NoError(t, err)

	items, err := svc.ListAccounts(as(10, 1), nil)
	require.NoError(t, err)
	require.Len(t, items, 1)

	pending := false
	items, err = svc.ListAccounts(as(10, 1), &pending)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestContactLifecycle(t *testing.T) {
	svc, notifier := newFixture(t, authzStub{})

	_, err := svc.RequestContact(as(10, 1), 91)
	assert.ErrorIs(t, err, associationdomain.ErrNotContact)

	item, err := svc.RequestContact(as(10, 1), 90)
	require.NoError(t, err)
	assert.Equal(t, []string{"Contact Association Request->90"}, notifier.sent())
	assert.Equal(t, "Cora Contact", notifier.events[0].Context["contact"])

	_, err = svc.RequestContact(as(11, 1), 90)
	assert.ErrorIs(t, err, associationdomain.ErrAssociationExists)

	_, err = svc.AcceptContact(as(10, 1), item.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	notifier.reset()
	accepted, err := svc.AcceptContact(contact(90), item.ID)
	require.NoError(t, err)
	assert.True(t, accepted.Accepted)
	assert.Equal(t, []string{"Contact Association Accepted->10", "Contact Associated->90"}, notifier.sent())

	mine, err := svc.ListContacts(contact(90), nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	ofAccount, err := svc.ListContacts(as(10, 1), nil)
	require.NoError(t, err)
	require.Len(t, ofAccount, 1)

	notifier.reset()
	require.NoError(t, svc.RemoveContact(contact(90), item.ID))
	assert.Equal(t, []string{"Contact Dissociated->10"}, notifier.sent())
}

func TestRemoveContactFromAccountSide(t *testing.T) {
	svc, notifier := newFixture(t, authzStub{})
	item, err := svc.RequestContact(as(10, 1), 90)
	require.NoError(t, err)

	err = svc.RemoveContact(as(20, 2), item.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	notifier.reset()
	require.NoError(t, svc.RemoveContact(as(10, 1), item.ID))
	assert.Equal(t, []string{"Contact Association Revoked->90"}, notifier.sent())
}

func TestContactRequestViaAdminAndInvite(t *testing.T) {
	svc, notifier := newFixture(t, authzStub{})

	require.NoError(t, svc.RequestContactViaAdmin(as(11, 1), 90))
	require.NoError(t, svc.InviteContact(as(10, 1), 90))
	assert.Equal(t, []string{
		"Contact Association Request to Admin->10",
		"Contact Association Invite->90",
	}, notifier.sent())
	assert.Equal(t, "Uma North", notifier.events[0].Context["requested_by"])
	assert.Equal(t, "North Clinic", notifier.events[1].Context["account"])

	contacts, err := svc.ListContacts(as(10, 1), nil)
	require.NoError(t, err)
	assert.Empty(t, contacts)

	assert.ErrorIs(t, svc.InviteContact(as(10, 1), 91), associationdomain.ErrNotContact)
	assert.ErrorIs(t, svc.InviteContact(as(10, 1), 0), associationdomain.ErrInvalidUser)

	noAdmin, _ := newFixture(t, authzStub{admins: map[snowflake.ID]snowflake.ID{2: 20}})
	_, ok := apperr.AsConflict(noAdmin.RequestContactViaAdmin(as(11, 1), 90))
	assert.True(t, ok)
}
