package service

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/authorization"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	"github.com/smallbiznis/caseline/internal/caserole/repository"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	userrepo "github.com/smallbiznis/caseline/internal/user/repository"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzStub struct {
	authorization.Service
	mu     sync.Mutex
	groups map[snowflake.ID][]string
	deny   map[authorization.Action]bool
}

func (a *authzStub) Check(_ context.Context, _ principal.Principal, action authorization.Action, _ *authorization.Target) error {
	if a.deny[action] {
		return authorization.ErrForbidden
	}
	return nil
}

func (a *authzStub) GroupsOf(_ context.Context, userID snowflake.ID) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.groups[userID]), nil
}

func (a *authzStub) SetUserGroups(_ context.Context, userID snowflake.ID, groups []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.groups[userID] = groups
	return nil
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
		out = append(out, e.Action+":"+e.Context["role_name"].(string)+"->"+e.ToUserID.String())
	}
	return out
}

func (n *notifierStub) reset() {
	n.mu.Lock()
	n.events = nil
	n.mu.Unlock()
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	authz    *authzStub
	notifier *notifierStub
	ref      caseroledomain.CaseRef
}

// Case 100 belongs to account 1. Users 10 and 11 are users of 1, 12 is a
// user of 2, 13 is a biomedical user of 1 and 90 is a contact.
func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest(
		&caseroledomain.DefaultRole{},
		&caseroledomain.CaseRole{},
		&caseroledomain.CasePermission{},
		&caseroledomain.CaseRolePermission{},
		&userdomain.User{},
	)
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`CREATE TABLE cases (id INTEGER PRIMARY KEY, parent_user_id INTEGER)`).Error)
	require.NoError(t, conn.Exec(`INSERT INTO cases (id) VALUES (100)`).Error)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	one, two := snowflake.ID(1), snowflake.ID(2)
	for _, u := range []*userdomain.User{
		{ID: 10, Email: "ana@north.test", FirstName: "Ana", LastName: "North", Slug: "ana-north", AccountID: &one, UserType: "User", Phone1: "+15550100"},
		{ID: 11, Email: "ben@north.test", FirstName: "Ben", LastName: "North", Slug: "ben-north", AccountID: &one, UserType: "User"},
		{ID: 12, Email: "sam@south.test", FirstName: "Sam", LastName: "South", Slug: "sam-south", AccountID: &two, UserType: "User"},
		{ID: 13, Email: "bio@north.test", FirstName: "Bea", LastName: "Bio", Slug: "bea-bio", AccountID: &one, UserType: "User"},
		{ID: 90, Email: "cora@mail.test", FirstName: "Cora", LastName: "Parent", Slug: "cora-parent", UserType: "Contact"},
	} {
		u.IsActive = true
		u.CreatedAt, u.UpdatedAt = now, now
		require.NoError(t, userrepo.Provide().Insert(context.Background(), conn, u))
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	authz := &authzStub{groups: map[snowflake.ID][]string{13: {authorization.GroupBiomedicalUser}}}
	notifier := &notifierStub{}
	svc := NewService(ServiceParam{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(now),
		Repo:     repository.Provide(),
		Users:    userrepo.Provide(),
		Authz:    authz,
		Notifier: notifier,
	})
	require.NoError(t, svc.EnsureDefaults(context.Background()))
	return fixture{
		svc:      svc.(*Service),
		db:       conn,
		authz:    authz,
		notifier: notifier,
		ref:      caseroledomain.CaseRef{ID: 100, AccountID: 1, CaseNo: "0000001", Slug: "0000001"},
	}
}

func asUser(userID, accountID snowflake.ID) context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:    userID,
		AccountID: accountID,
		UserType:  principal.UserTypeUser,
	})
}

func names(members []caseroledomain.Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Slug)
	}
	return out
}

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.EnsureDefaults(context.Background()))

	roles, err := f.svc.Roles(context.Background())
	require.NoError(t, err)
	assert.Len(t, roles, len(caseroledomain.DefaultRoles))

	var links int64
	require.NoError(t, f.db.Model(&caseroledomain.CaseRolePermission{}).Count(&links).Error)
	want := 0
	for _, codes := range caseroledomain.DefaultRoleCodes {
		want += len(codes)
	}
	assert.Equal(t, int64(want), links)
}

func TestUpdateAssignsAndNotifies(t *testing.T) {
	f := newFixture(t)

	roles, err := f.svc.Update(asUser(10, 1), f.ref, caseroledomain.Assignment{
		caseroledomain.RoleCaseManager: {10},
		caseroledomain.RoleScorer:      {10, 11, 11},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana-north"}, names(roles.Roles[caseroledomain.RoleCaseManager]))
	assert.ElementsMatch(t, []string{"ana-north", "ben-north"}, names(roles.Roles[caseroledomain.RoleScorer]))
	assert.Empty(t, roles.Roles[caseroledomain.RoleSpecialist])
	assert.Nil(t, roles.Parent)

	assert.Equal(t, []string{
		"Case Role Assigned:Case Manager->10",
		"Case Role Assigned:Scorer->10",
		"Case Role Assigned:Scorer->11",
	}, f.notifier.sent())
	event := f.notifier.events[0]
	assert.Equal(t, "0000001", event.Context["case_number"])
	assert.Equal(t, "Ana North", event.Context["case_manager"])
	assert.Equal(t, "+15550100", event.Context["case_manager_phone_number"])
	assert.Equal(t, "0000001", event.Context["link"])
}

func TestUpdateRemovesOnlyDroppedRole(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(10, 1)

	_, err := f.svc.Update(ctx, f.ref, caseroledomain.Assignment{
		caseroledomain.RoleCaseManager: {10},
		caseroledomain.RoleScorer:      {10},
	})
	require.NoError(t, err)
	f.notifier.reset()

	roles, err := f.svc.Update(ctx, f.ref, caseroledomain.Assignment{
		caseroledomain.RoleCaseManager: {},
		caseroledomain.RoleScorer:      {10},
	})
	require.NoError(t, err)
	assert.Empty(t, roles.Roles[caseroledomain.RoleCaseManager])
	assert.Equal(t, []string{"ana-north"}, names(roles.Roles[caseroledomain.RoleScorer]))
	assert.Equal(t, []string{"Case Role Unassigned:Case Manager->10"}, f.notifier.sent())
}

func TestUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(10, 1)
	desired := caseroledomain.Assignment{
		caseroledomain.RoleScorer:     {10, 11},
		caseroledomain.RoleSpecialist: {12},
	}

	_, err := f.svc.Update(ctx, f.ref, desired)
	require.NoError(t, err)
	f.notifier.reset()

	_, err = f.svc.Update(ctx, f.ref, desired)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.sent())

	var rows int64
	require.NoError(t, f.db.Model(&caseroledomain.CaseRole{}).Count(&rows).Error)
	assert.Equal(t, int64(3), rows)
}

func TestUpdateLeavesUnsubmittedRoles(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(10, 1)

	_, err := f.svc.Update(ctx, f.ref, caseroledomain.Assignment{caseroledomain.RoleScorer: {11}})
	require.NoError(t, err)
	roles, err := f.svc.Update(ctx, f.ref, caseroledomain.Assignment{caseroledomain.RoleSpecialist: {12}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ben-north"}, names(roles.Roles[caseroledomain.RoleScorer]))
}

func TestUpdateValidatesAdditions(t *testing.T) {
	cases := []struct {
		name    string
		desired caseroledomain.Assignment
		message string
	}{
		{"case manager of other account", caseroledomain.Assignment{caseroledomain.RoleCaseManager: {12}}, "User's and case account must be same"},
		{"case manager without account", caseroledomain.Assignment{caseroledomain.RoleCaseManager: {90}}, "account is required"},
		{"biomedical scorer", caseroledomain.Assignment{caseroledomain.RoleScorer: {13}}, "Biomedical users can not hold case roles"},
		{"biomedical specialist", caseroledomain.Assignment{caseroledomain.RoleSpecialist: {13}}, "Biomedical users can not hold case roles"},
		{"contact scorer", caseroledomain.Assignment{caseroledomain.RoleScorer: {90}}, "Only users can hold this role"},
		{"user as parent", caseroledomain.Assignment{caseroledomain.RoleParent: {11}}, "Parent must be a contact"},
		{"unknown user", caseroledomain.Assignment{caseroledomain.RoleScorer: {999}}, "User does not exist"},
		{"two parents", caseroledomain.Assignment{caseroledomain.RoleParent: {90, 91}}, "A case can have only one parent"},
		{"unknown role", caseroledomain.Assignment{"Janitor": {10}}, "Unknown case role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Update(asUser(10, 1), f.ref, tc.desired)
			verr, ok := apperr.AsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			require.Len(t, verr.Errors, 1)
			assert.Equal(t, tc.message, verr.Errors[0].Message)
			assert.Empty(t, f.notifier.sent())

			var rows int64
			require.NoError(t, f.db.Model(&caseroledomain.CaseRole{}).Count(&rows).Error)
			assert.Zero(t, rows)
		})
	}
}

func TestUpdateRollsBackRemovalsOnInvalidAddition(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(10, 1)
	_, err := f.svc.Update(ctx, f.ref, caseroledomain.Assignment{caseroledomain.RoleScorer: {11}})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.ref, caseroledomain.Assignment{caseroledomain.RoleScorer: {13}})
	_, ok := apperr.AsValidation(err)
	require.True(t, ok)

	roles, err := f.svc.Retrieve(ctx, f.ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"ben-north"}, names(roles.Roles[caseroledomain.RoleScorer]))
}

func TestParentRole(t *testing.T) {
	f := newFixture(t)
	ctx := asUser(10, 1)

	roles, err := f.svc.Update(ctx, f.ref, caseroledomain.Assignment{caseroledomain.RoleParent: {90}})
	require.NoError(t, err)
	require.NotNil(t, roles.Parent)
	assert.Equal(t, "cora-parent", roles.Parent.Slug)
	assert.Equal(t, "Cora Parent", roles.Parent.Name)
	assert.Contains(t, f.authz.groups[90], authorization.GroupParent)

	var parent sql.NullInt64
	require.NoError(t, f.db.Raw(`SELECT parent_user_id FROM cases WHERE id = 100`).Row().Scan(&parent))
	assert.Equal(t, sql.NullInt64{Int64: 90, Valid: true}, parent)

	_, err = f.svc.Update(ctx, f.ref, caseroledomain.Assignment{caseroledomain.RoleParent: {}})
	require.NoError(t, err)
	require.NoError(t, f.db.Raw(`SELECT parent_user_id FROM cases WHERE id = 100`).Row().Scan(&parent))
	assert.False(t, parent.Valid)
}

func TestUpdateRequiresPermission(t *testing.T) {
	f := newFixture(t)
	f.authz.deny = map[authorization.Action]bool{
		authorization.ActionCaseRoleEdit: true,
		authorization.ActionCaseRoleView: true,
	}

	_, err := f.svc.Update(asUser(11, 1), f.ref, caseroledomain.Assignment{caseroledomain.RoleScorer: {11}})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = f.svc.Retrieve(asUser(11, 1), f.ref)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = f.svc.Retrieve(context.Background(), f.ref)
	assert.ErrorIs(t, err, principal.ErrUnauthenticated)
}

func TestHolders(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(asUser(10, 1), f.ref, caseroledomain.Assignment{
		caseroledomain.RoleCaseManager: {10},
		caseroledomain.RoleScorer:      {10, 11},
	})
	require.NoError(t, err)

	holders, err := f.svc.Holders(context.Background(), f.ref.ID, []string{caseroledomain.RoleCaseManager, caseroledomain.RoleScorer})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{10, 11}, holders)

	holders, err = f.svc.Holders(context.Background(), f.ref.ID, []string{caseroledomain.RoleParent})
	require.NoError(t, err)
	assert.Empty(t, holders)
}
