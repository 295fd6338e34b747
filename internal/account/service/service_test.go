package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	"github.com/smallbiznis/caseline/internal/account/repository"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	associationrepo "github.com/smallbiznis/caseline/internal/association/repository"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/clock"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/caseline/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/caseline/internal/subscription/service"
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
	admins map[snowflake.ID]snowflake.ID
	deny   map[authorization.Action]bool
	codes  authorization.CodeSet
}

func (a *authzStub) Check(_ context.Context, _ principal.Principal, action authorization.Action, _ *authorization.Target) error {
	if a.deny[action] {
		return authorization.ErrForbidden
	}
	return nil
}

func (a *authzStub) Resolve(context.Context, principal.Principal, *authorization.Target) (authorization.CodeSet, error) {
	return a.codes, nil
}

func (a *authzStub) AccountAdmin(_ context.Context, accountID snowflake.ID) (snowflake.ID, error) {
	if id, ok := a.admins[accountID]; ok {
		return id, nil
	}
	return 0, authorization.ErrNoAccountAdmin
}

type usersStub struct {
	userdomain.Service
	db    *gorm.DB
	authz *authzStub
}

func (u usersStub) AccountAdmin(ctx context.Context, accountID snowflake.ID) (*userdomain.User, error) {
	id, err := u.authz.AccountAdmin(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return userrepo.Provide().FindByID(ctx, u.db, id)
}

func (u usersStub) UsersOfAccounts(ctx context.Context, ids []snowflake.ID) ([]*userdomain.User, error) {
	return userrepo.Provide().ListByAccounts(ctx, u.db, ids)
}

func (u usersStub) FindByIDs(ctx context.Context, ids []snowflake.ID) ([]*userdomain.User, error) {
	return userrepo.Provide().ListByIDs(ctx, u.db, ids)
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

type fixture struct {
	svc      *Service
	db       *gorm.DB
	authz    *authzStub
	notifier *notifierStub
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest(
		&accountdomain.Account{},
		&accountdomain.Ancestor{},
		&subscriptiondomain.UserSubscription{},
		&subscriptiondomain.DeviceSubscription{},
		&userdomain.User{},
		&associationdomain.AccountAssociation{},
		&associationdomain.ContactAssociation{},
	)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE devices (id INTEGER PRIMARY KEY, account_id INTEGER, sub_start_date DATE)`,
		`CREATE TABLE cases (id INTEGER PRIMARY KEY, account_id INTEGER)`,
	} {
		require.NoError(t, conn.Exec(stmt).Error, stmt)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	authz := &authzStub{admins: map[snowflake.ID]snowflake.ID{}, codes: authorization.AllCodes()}
	notifier := &notifierStub{}
	subRepo := subscriptionrepo.Provide()

	svc := NewService(ServiceParam{
		DB:           conn,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         repository.Provide(),
		Associations: associationrepo.Provide(),
		SubRepo:      subRepo,
		Subs: subscriptionservice.NewService(subscriptionservice.ServiceParam{
			DB:    conn,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: fake,
			Repo:  subRepo,
			Authz: authz,
		}),
		Users:    usersStub{db: conn, authz: authz},
		Authz:    authz,
		Notifier: notifier,
	})
	return fixture{svc: svc.(*Service), db: conn, authz: authz, notifier: notifier}
}

func asSuperuser() context.Context {
	return principal.WithPrincipal(context.Background(), principal.System())
}

func (f fixture) create(t *testing.T, number, name string, typ accountdomain.Type, parent string) *accountdomain.Account {
	t.Helper()
	account, err := f.svc.Create(asSuperuser(), accountdomain.CreateAccountRequest{
		AccountNumber:       number,
		Name:                name,
		Type:                typ,
		ParentAccountNumber: parent,
	})
	require.NoError(t, err)
	return account
}

func (f fixture) reload(t *testing.T, id snowflake.ID) *accountdomain.Account {
	t.Helper()
	account, err := f.svc.repo.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	return account
}

func (f fixture) addUser(t *testing.T, id snowflake.ID, accountID *snowflake.ID, userType string) {
	t.Helper()
	require.NoError(t, userrepo.Provide().Insert(context.Background(), f.db, &userdomain.User{
		ID:        id,
		Email:     id.String() + "@example.test",
		FirstName: "User",
		LastName:  id.String(),
		Slug:      "user-" + id.String(),
		AccountID: accountID,
		UserType:  userType,
		IsActive:  true,
	}))
}

func ids(accounts []*accountdomain.Account) []string {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.AccountNumber)
	}
	return out
}

func fieldsOf(v *apperr.ValidationError) []string {
	out := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e.Field)
	}
	return out
}

func TestCreateBuildsHierarchy(t *testing.T) {
	f := newFixture(t)

	hq := f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	assert.Equal(t, "harbor-health-h-1", hq.Slug)
	assert.False(t, hq.IsActive)
	assert.Empty(t, hq.Parents)

	mid := f.create(t, "M-1", "Mid Clinic", accountdomain.TypeSub, "H-1")
	leaf := f.create(t, "L-1", "Leaf Clinic", accountdomain.TypeSub, "M-1")
	assert.Equal(t, []string{"M-1", "H-1"}, []string(leaf.Parents))

	// A sub that gains a subsidiary becomes hq_sub.
	assert.Equal(t, accountdomain.TypeHQSub, f.reload(t, mid.ID).Type)

	below, err := f.svc.repo.Descendants(context.Background(), f.db, hq.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"M-1", "L-1"}, ids(below))

	chain, err := f.svc.WalkAncestors(context.Background(), leaf)
	require.NoError(t, err)
	assert.Equal(t, []string{"M-1", "H-1"}, ids(chain))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	ctx := asSuperuser()

	_, err := f.svc.Create(ctx, accountdomain.CreateAccountRequest{AccountNumber: "H-1", Name: "Again"})
	assert.ErrorIs(t, err, accountdomain.ErrAccountNumberTaken)

	_, err = f.svc.Create(ctx, accountdomain.CreateAccountRequest{AccountNumber: "ABCDEFGHIJKLM", Name: "Long"})
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, fieldsOf(verr), "account_number")

	_, err = f.svc.Create(ctx, accountdomain.CreateAccountRequest{AccountNumber: "S-1", Name: "Orphan", Type: accountdomain.TypeSub})
	_, ok = apperr.AsValidation(err)
	assert.True(t, ok)

	_, err = f.svc.Create(ctx, accountdomain.CreateAccountRequest{AccountNumber: "S-2", Name: "Lost", Type: accountdomain.TypeSub, ParentAccountNumber: "NOPE"})
	_, ok = apperr.AsValidation(err)
	assert.True(t, ok)

	_, err = f.svc.Create(ctx, accountdomain.CreateAccountRequest{
		AccountNumber: "S-3",
		Name:          "Dated",
		Subscription:  &accountdomain.SubscriptionRequest{StartDate: "2026-03-01", EndDate: "2026-02-01"},
	})
	verr, ok = apperr.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, fieldsOf(verr), "user_end_date")

	f.authz.deny = map[authorization.Action]bool{authorization.ActionAccountCreate: true}
	_, err = f.svc.Create(ctx, accountdomain.CreateAccountRequest{AccountNumber: "X-1", Name: "Denied"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestCreateSelfParentedHQSubIsRoot(t *testing.T) {
	f := newFixture(t)

	account := f.create(t, "Q-1", "Quay", accountdomain.TypeHQSub, "Q-1")
	assert.True(t, account.IsRoot())
}

func TestCreateWithSubscriptionIsActive(t *testing.T) {
	f := newFixture(t)
	users := 4

	account, err := f.svc.Create(asSuperuser(), accountdomain.CreateAccountRequest{
		AccountNumber: "H-1",
		Name:          "Harbor Health",
		Subscription: &accountdomain.SubscriptionRequest{
			StartDate:  "01-03-2026",
			EndDate:    "2026-12-31",
			NumOfUsers: &users,
		},
	})
	require.NoError(t, err)
	assert.True(t, account.IsActive)

	summary, err := f.svc.Subscription(asSuperuser(), account.Slug)
	require.NoError(t, err)
	require.NotNil(t, summary.Current)
	assert.Equal(t, 4, summary.Current.NumOfUsers)
}

func TestAcquireSubWithoutSubsidiaries(t *testing.T) {
	f := newFixture(t)
	h := f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	s := f.create(t, "S-1", "Solo Clinic", accountdomain.TypeHQ, "")
	f.authz.admins[h.ID] = 100
	f.authz.admins[s.ID] = 200

	acquired, err := f.svc.Acquire(asSuperuser(), accountdomain.AcquireRequest{Acquired: s.Slug, Acquiring: h.Slug})
	require.NoError(t, err)
	assert.Equal(t, accountdomain.TypeSub, acquired.Type)

	got := f.reload(t, s.ID)
	assert.Equal(t, accountdomain.TypeSub, got.Type)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, h.ID, *got.ParentID)
	assert.Contains(t, []string(got.Parents), "H-1")
	assert.Equal(t, accountdomain.TypeHQ, f.reload(t, h.ID).Type)

	assert.Equal(t, []string{
		"Account Acquisition - Acquirer->200",
		"Account Acquisition - Acquiring->100",
	}, f.notifier.sent())
}

func TestAcquireRecomputesDescendants(t *testing.T) {
	f := newFixture(t)
	top := f.create(t, "T-1", "Top", accountdomain.TypeHQ, "")
	old := f.create(t, "O-1", "Old Parent", accountdomain.TypeSub, "T-1")
	mover := f.create(t, "M-1", "Mover", accountdomain.TypeSub, "O-1")
	f.create(t, "L-1", "Leaf", accountdomain.TypeSub, "M-1")
	buyer := f.create(t, "B-1", "Buyer", accountdomain.TypeSub, "T-1")

	_, err := f.svc.Acquire(asSuperuser(), accountdomain.AcquireRequest{Acquired: mover.Slug, Acquiring: buyer.Slug})
	require.NoError(t, err)

	assert.Equal(t, accountdomain.TypeHQSub, f.reload(t, mover.ID).Type)
	assert.Equal(t, accountdomain.TypeHQSub, f.reload(t, buyer.ID).Type)
	// The former parent lost its only subsidiary.
	assert.Equal(t, accountdomain.TypeSub, f.reload(t, old.ID).Type)
	assert.Equal(t, accountdomain.TypeHQ, f.reload(t, top.ID).Type)
	assert.True(t, f.reload(t, top.ID).IsRoot())

	leaf, err := f.svc.FindByNumber(context.Background(), "L-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"M-1", "B-1", "T-1"}, []string(leaf.Parents))

	below, err := f.svc.repo.Descendants(context.Background(), f.db, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"M-1", "L-1"}, ids(below))

	below, err = f.svc.repo.Descendants(context.Background(), f.db, old.ID)
	require.NoError(t, err)
	assert.Empty(t, below)
}

func TestAcquireRefusesCycles(t *testing.T) {
	f := newFixture(t)
	top := f.create(t, "T-1", "Top", accountdomain.TypeHQ, "")
	f.create(t, "M-1", "Mid", accountdomain.TypeSub, "T-1")
	leaf := f.create(t, "L-1", "Leaf", accountdomain.TypeSub, "M-1")
	ctx := asSuperuser()

	_, err := f.svc.Acquire(ctx, accountdomain.AcquireRequest{Acquired: top.Slug, Acquiring: top.Slug})
	assert.ErrorIs(t, err, accountdomain.ErrAcquireSelf)

	_, err = f.svc.Acquire(ctx, accountdomain.AcquireRequest{Acquired: top.Slug, Acquiring: leaf.Slug})
	assert.ErrorIs(t, err, accountdomain.ErrAcquireDescendant)
	assert.True(t, f.reload(t, top.ID).IsRoot())

	candidates, err := f.svc.AcquiringCandidates(ctx, "mid-m-1")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestWalkAncestorsDetectsCycle(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "A-1", "Alpha", accountdomain.TypeHQ, "")
	b := f.create(t, "B-1", "Beta", accountdomain.TypeSub, "A-1")
	require.NoError(t, f.db.Exec(`UPDATE accounts SET parent_id = ? WHERE id = ?`, b.ID, a.ID).Error)

	_, err := f.svc.WalkAncestors(context.Background(), f.reload(t, b.ID))
	assert.ErrorIs(t, err, accountdomain.ErrAncestorCycle)
}

func TestSetActiveRequiresSubscriptions(t *testing.T) {
	f := newFixture(t)
	users := 3
	hq, err := f.svc.Create(asSuperuser(), accountdomain.CreateAccountRequest{
		AccountNumber: "H-1",
		Name:          "Harbor Health",
		Subscription:  &accountdomain.SubscriptionRequest{StartDate: "2026-01-01", EndDate: "2026-12-31", NumOfUsers: &users},
	})
	require.NoError(t, err)
	f.create(t, "S-1", "Sub One", accountdomain.TypeSub, "H-1")
	f.create(t, "S-2", "Sub Two", accountdomain.TypeSub, "H-1")
	ctx := asSuperuser()

	_, err = f.svc.SetActive(ctx, hq.Slug, accountdomain.SetActiveRequest{IsActive: true, IsHQ: true})
	assert.ErrorIs(t, err, accountdomain.ErrNoAccountAdmin)

	f.authz.admins[hq.ID] = 100
	_, err = f.svc.SetActive(ctx, hq.Slug, accountdomain.SetActiveRequest{IsActive: true, IsHQ: true, IsSubsidiaries: true})
	conflict, ok := apperr.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, "One or more subsidiary does not have subscriptions and cannot be activated. Following accounts are 'S-1, S-2'.", conflict.Message)

	got, err := f.svc.SetActive(ctx, hq.Slug, accountdomain.SetActiveRequest{IsActive: false, IsHQ: true})
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = f.svc.SetActive(ctx, hq.Slug, accountdomain.SetActiveRequest{IsActive: true, IsHQ: true})
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, []string{"Account Deactivation->100", "Account Activation->100"}, f.notifier.sent())
	assert.Equal(t, 3, f.notifier.events[1].Context["number_of_users"])

	bare := f.create(t, "B-1", "Bare", accountdomain.TypeHQ, "")
	_, err = f.svc.SetActive(ctx, bare.Slug, accountdomain.SetActiveRequest{IsActive: true, IsHQ: true})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNoCurrentSubscription)
}

func TestSetDomain(t *testing.T) {
	f := newFixture(t)
	account := f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	ctx := asSuperuser()

	same, err := f.svc.SetDomain(ctx, account.Slug, "")
	require.NoError(t, err)
	assert.Nil(t, same.Domain)

	_, err = f.svc.SetDomain(ctx, account.Slug, "not a domain")
	assert.ErrorIs(t, err, accountdomain.ErrInvalidDomain)

	got, err := f.svc.SetDomain(ctx, account.Slug, "Harbor.Health.test")
	require.NoError(t, err)
	require.NotNil(t, got.Domain)
	assert.Equal(t, "harbor.health.test", *got.Domain)

	_, err = f.svc.SetDomain(ctx, account.Slug, "other.test")
	assert.ErrorIs(t, err, accountdomain.ErrDomainExists)
}

func TestDeleteChecksReferences(t *testing.T) {
	f := newFixture(t)
	account := f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	ctx := asSuperuser()

	require.NoError(t, f.db.Exec(`INSERT INTO devices (id, account_id) VALUES (1, ?)`, account.ID).Error)
	err := f.svc.Delete(ctx, account.Slug)
	conflict, ok := apperr.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, "Account can not be deleted because one or more devices exist.", conflict.Message)

	require.NoError(t, f.db.Exec(`DELETE FROM devices`).Error)
	require.NoError(t, f.svc.Delete(ctx, account.Slug))

	_, err = f.svc.Get(ctx, account.Slug)
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)
}

func TestGetDetail(t *testing.T) {
	f := newFixture(t)
	hq := f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	sub := f.create(t, "S-1", "Sub One", accountdomain.TypeSub, "H-1")
	f.addUser(t, 100, &hq.ID, "User")
	f.authz.admins[hq.ID] = 100

	detail, err := f.svc.Get(asSuperuser(), hq.Slug)
	require.NoError(t, err)
	require.NotNil(t, detail.Admin)
	assert.Equal(t, snowflake.ID(100), detail.Admin.ID)
	assert.Equal(t, []string{"S-1"}, ids(detail.Subsidiaries))
	assert.Nil(t, detail.ParentAccountNumber)

	child, err := f.svc.Get(asSuperuser(), sub.Slug)
	require.NoError(t, err)
	assert.Nil(t, child.Admin)
	require.NotNil(t, child.ParentAccountNumber)
	assert.Equal(t, "H-1", *child.ParentAccountNumber)
}

func TestCaseUsersUnion(t *testing.T) {
	f := newFixture(t)
	hq := f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	mid := f.create(t, "M-1", "Mid", accountdomain.TypeSub, "H-1")
	leaf := f.create(t, "L-1", "Leaf", accountdomain.TypeSub, "M-1")
	partner := f.create(t, "P-1", "Partner", accountdomain.TypeHQ, "")
	stranger := f.create(t, "X-1", "Stranger", accountdomain.TypeHQ, "")

	f.addUser(t, 1, &hq.ID, "User")
	f.addUser(t, 2, &mid.ID, "User")
	f.addUser(t, 3, &leaf.ID, "User")
	f.addUser(t, 4, &partner.ID, "User")
	f.addUser(t, 5, &stranger.ID, "User")
	f.addUser(t, 6, nil, "Contact")
	f.addUser(t, 7, nil, "Contact")

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&associationdomain.AccountAssociation{ID: 1, FromAccountID: mid.ID, ToAccountID: partner.ID, Accepted: true, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, f.db.Create(&[]associationdomain.ContactAssociation{
		{ID: 1, ContactUserID: 6, AccountID: mid.ID, Accepted: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, ContactUserID: 7, AccountID: mid.ID, Accepted: false, CreatedAt: now, UpdatedAt: now},
	}).Error)

	users, err := f.svc.CaseUsers(asSuperuser(), mid.Slug)
	require.NoError(t, err)
	got := make([]snowflake.ID, 0, len(users))
	for _, u := range users {
		got = append(got, u.ID)
	}
	assert.ElementsMatch(t, []snowflake.ID{1, 2, 3, 4, 6}, got)
}

func TestListAssociatedOnly(t *testing.T) {
	f := newFixture(t)
	x := f.create(t, "X-1", "Xenon", accountdomain.TypeHQ, "")
	f.create(t, "Y-1", "Yttrium", accountdomain.TypeHQ, "")
	y, err := f.svc.FindByNumber(context.Background(), "Y-1")
	require.NoError(t, err)
	f.create(t, "Z-1", "Zinc", accountdomain.TypeHQ, "")

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&associationdomain.AccountAssociation{ID: 1, FromAccountID: x.ID, ToAccountID: y.ID, Accepted: true, CreatedAt: now, UpdatedAt: now}).Error)

	f.authz.codes = authorization.NewCodeSet(authorization.AccountListAssociated)
	ctx := principal.WithPrincipal(context.Background(), principal.Principal{UserID: 10, AccountID: x.ID, UserType: principal.UserTypeUser})

	page, err := f.svc.List(ctx, accountdomain.ListAccountRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Y-1"}, ids(page.Accounts))
	assert.Equal(t, int64(1), page.PageInfo.Total)
}

func TestUpdateFields(t *testing.T) {
	f := newFixture(t)
	account := f.create(t, "H-1", "Harbor Health", accountdomain.TypeHQ, "")
	ctx := asSuperuser()

	name, city, lang := "Harbor Group", "  Lisbon ", "fr"
	got, err := f.svc.Update(ctx, account.Slug, accountdomain.UpdateAccountRequest{Name: &name, City: &city, Language: &lang})
	require.NoError(t, err)
	assert.Equal(t, "Harbor Group", got.Name)
	assert.Equal(t, "Lisbon", got.City)
	assert.Equal(t, "fr", got.Language)

	bad := "de"
	_, err = f.svc.Update(ctx, account.Slug, accountdomain.UpdateAccountRequest{Language: &bad})
	_, ok := apperr.AsValidation(err)
	assert.True(t, ok)

	f.authz.deny = map[authorization.Action]bool{authorization.ActionAccountEdit: true}
	_, err = f.svc.Update(ctx, account.Slug, accountdomain.UpdateAccountRequest{Name: &name})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}
