package service

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/caseline/internal/account/domain"
	accountrepo "github.com/smallbiznis/caseline/internal/account/repository"
	associationdomain "github.com/smallbiznis/caseline/internal/association/domain"
	associationrepo "github.com/smallbiznis/caseline/internal/association/repository"
	"github.com/smallbiznis/caseline/internal/authorization"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	caserolerepo "github.com/smallbiznis/caseline/internal/caserole/repository"
	caseroleservice "github.com/smallbiznis/caseline/internal/caserole/service"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	"github.com/smallbiznis/caseline/internal/cases/repository"
	"github.com/smallbiznis/caseline/internal/clock"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	devicerepo "github.com/smallbiznis/caseline/internal/device/repository"
	deviceservice "github.com/smallbiznis/caseline/internal/device/service"
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	matrixrepo "github.com/smallbiznis/caseline/internal/notificationmatrix/repository"
	matrixservice "github.com/smallbiznis/caseline/internal/notificationmatrix/service"
	"github.com/smallbiznis/caseline/internal/principal"
	subscriptiondomain "github.com/smallbiznis/caseline/internal/subscription/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	userrepo "github.com/smallbiznis/caseline/internal/user/repository"
	userservice "github.com/smallbiznis/caseline/internal/user/service"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type authzStub struct {
	authorization.Service
	mu     sync.Mutex
	groups map[snowflake.ID][]string
	admins map[snowflake.ID]snowflake.ID
	codes  authorization.CodeSet
	deny   map[authorization.Action]bool
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

func (a *authzStub) AccountAdmin(_ context.Context, accountID snowflake.ID) (snowflake.ID, error) {
	id, ok := a.admins[accountID]
	if !ok {
		return 0, authorization.ErrNoAccountAdmin
	}
	return id, nil
}

// subsStub reports a current subscription for account 1 only.
type subsStub struct {
	subscriptiondomain.Service
}

func (subsStub) Current(_ context.Context, accountID snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	if accountID != 1 {
		return nil, subscriptiondomain.ErrNoCurrentSubscription
	}
	return &subscriptiondomain.UserSubscription{ID: 700, AccountID: 1}, nil
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

// sent lists events as "Action->user".
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

type fixture struct {
	svc      *Service
	db       *gorm.DB
	clock    *clock.FakeClock
	authz    *authzStub
	notifier *notifierStub
}

// Accounts 1 and 2 exist; only 1 is subscribed. User 10 is a user of 1 and
// its account admin, 12 is a user of 2. Devices SN1, SN2, SN3 belong to 1,
// SN9 to 2; SN3 is lost.
func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest(
		&accountdomain.Account{},
		&userdomain.User{},
		&associationdomain.ContactAssociation{},
		&devicedomain.Device{},
		&casedomain.Case{},
		&casedomain.Patient{},
		&casedomain.Parent{},
		&casedomain.CaseDevice{},
		&caseroledomain.DefaultRole{},
		&caseroledomain.CaseRole{},
		&caseroledomain.CasePermission{},
		&caseroledomain.CaseRolePermission{},
		&matrixdomain.NotificationType{},
		&matrixdomain.DefaultEntry{},
		&matrixdomain.CaseEntry{},
	)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	for _, a := range []*accountdomain.Account{
		{ID: 1, AccountNumber: "N-1", Slug: "north-n-1", Name: "North Clinic", Type: accountdomain.TypeHQ, Parents: datatypes.JSONSlice[string]{}, Language: "en", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, AccountNumber: "S-2", Slug: "south-s-2", Name: "South Clinic", Type: accountdomain.TypeHQ, Parents: datatypes.JSONSlice[string]{}, Language: "en", IsActive: true, CreatedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, conn.Create(a).Error)
	}
	one, two := snowflake.ID(1), snowflake.ID(2)
	for _, u := range []*userdomain.User{
		{ID: 10, Email: "ana@north.test", FirstName: "Ana", LastName: "North", Slug: "ana-north", AccountID: &one, UserType: "User"},
		{ID: 12, Email: "sam@south.test", FirstName: "Sam", LastName: "South", Slug: "sam-south", AccountID: &two, UserType: "User"},
	} {
		u.IsActive = true
		u.CreatedAt, u.UpdatedAt = now, now
		require.NoError(t, userrepo.Provide().Insert(context.Background(), conn, u))
	}
	for _, d := range []*devicedomain.Device{
		{ID: 201, SerialNumber: "SN1", Slug: "sn1", Status: devicedomain.StatusAvailable, AccountID: 1},
		{ID: 202, SerialNumber: "SN2", Slug: "sn2", Status: devicedomain.StatusAvailable, AccountID: 1},
		{ID: 203, SerialNumber: "SN3", Slug: "sn3", Status: devicedomain.StatusLostBroken, AccountID: 1},
		{ID: 209, SerialNumber: "SN9", Slug: "sn9", Status: devicedomain.StatusAvailable, AccountID: 2},
	} {
		d.IsActive = true
		d.DateAdded, d.CreatedAt, d.UpdatedAt = now, now, now
		require.NoError(t, conn.Create(d).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	authz := &authzStub{
		groups: map[snowflake.ID][]string{},
		admins: map[snowflake.ID]snowflake.ID{1: 10},
		codes:  authorization.AllCodes(),
	}
	notifier := &notifierStub{}
	log := zap.NewNop()

	roles := caseroleservice.NewService(caseroleservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: caserolerepo.Provide(), Users: userrepo.Provide(), Authz: authz, Notifier: notifier,
	})
	require.NoError(t, roles.EnsureDefaults(context.Background()))
	matrix := matrixservice.NewService(matrixservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: matrixrepo.Provide(), Roles: caserolerepo.Provide(), Authz: authz,
	})
	require.NoError(t, matrix.EnsureDefaults(context.Background()))
	devices := deviceservice.NewService(deviceservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: devicerepo.Provide(), Accounts: accountrepo.Provide(), Users: userrepo.Provide(),
		Authz: authz, Notifier: notifier,
	})
	users := userservice.NewService(userservice.ServiceParam{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo: userrepo.Provide(), Associations: associationrepo.Provide(),
		Authz: authz, Subs: subsStub{}, Notifier: notifier,
	})

	svc := NewService(ServiceParam{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		Accounts: accountrepo.Provide(),
		Devices:  devices,
		DeviceDB: devicerepo.Provide(),
		Users:    users,
		UserDB:   userrepo.Provide(),
		Subs:     subsStub{},
		Roles:    roles,
		Matrix:   matrix,
		Authz:    authz,
		Notifier: notifier,
	})
	return fixture{svc: svc.(*Service), db: conn, clock: clk, authz: authz, notifier: notifier}
}

func asUser(userID, accountID snowflake.ID) context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:    userID,
		AccountID: accountID,
		UserType:  principal.UserTypeUser,
	})
}

func asSuperuser() context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:      10,
		IsSuperuser: true,
		UserType:    principal.UserTypeUser,
	})
}

func createRequest(serial string) casedomain.CreateCaseRequest {
	return casedomain.CreateCaseRequest{
		Device:    serial,
		IsConsent: true,
		Patient: casedomain.PatientRequest{
			FirstName:   "Noa",
			LastName:    "Rivers",
			Gender:      "Female",
			DateOfBirth: "14-02-2021",
			Address1:    "1 Main St",
			Zipcode:     "10001",
		},
		Roles: caseroledomain.Assignment{caseroledomain.RoleCaseManager: {10}},
	}
}

func (f fixture) create(t *testing.T, serial string) *casedomain.CaseDetail {
	t.Helper()
	c, err := f.svc.Create(asUser(10, 1), createRequest(serial))
	require.NoError(t, err)
	return c
}

func (f fixture) deviceStatus(t *testing.T, id snowflake.ID) devicedomain.Status {
	t.Helper()
	var d devicedomain.Device
	require.NoError(t, f.db.First(&d, "id = ?", id).Error)
	return d.Status
}

func (f fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	query := f.db.Model(model)
	if where != "" {
		query = query.Where(where, args...)
	}
	require.NoError(t, query.Count(&n).Error)
	return n
}

func TestCreateAssignsDeviceRolesAndMatrix(t *testing.T) {
	f := newFixture(t)

	c := f.create(t, "SN1")

	assert.Equal(t, "0000001", c.CaseNo)
	assert.Equal(t, c.CaseNo, c.Slug)
	assert.True(t, c.IsActive)
	assert.Equal(t, "UTC", c.Timezone)
	require.NotNil(t, c.Patient)
	assert.Equal(t, time.Date(2021, 2, 14, 0, 0, 0, 0, time.UTC), c.Patient.DateOfBirth.UTC())
	require.NotNil(t, c.Device)
	assert.Equal(t, "SN1", c.Device.SerialNumber)
	assert.Equal(t, devicedomain.StatusAssigned, f.deviceStatus(t, 201))

	total := int64(len(caseroledomain.DefaultRoles) * len(matrixdomain.DefaultTypes))
	assert.Equal(t, total, f.count(t, &matrixdomain.CaseEntry{}, "case_id = ?", c.ID))
	assert.Equal(t, []string{"Case Role Assigned->10"}, f.notifier.sent())
}

func TestCreateNumbersCasesSequentially(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, "SN1")
	second := f.create(t, "SN2")

	assert.Equal(t, "0000001", first.CaseNo)
	assert.Equal(t, "0000002", second.CaseNo)
}

func TestCreateRejectsUnavailableDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(asUser(10, 1), createRequest("SN3"))
	require.ErrorIs(t, err, devicedomain.ErrDeviceUnavailable)

	f.create(t, "SN1")
	_, err = f.svc.Create(asUser(10, 1), createRequest("SN1"))
	require.ErrorIs(t, err, devicedomain.ErrDeviceUnavailable)

	assert.Equal(t, int64(1), f.count(t, &casedomain.Case{}, ""))
	assert.Equal(t, int64(1), f.count(t, &casedomain.Patient{}, ""))
}

func TestCreateRequiresSubscriptionAndAccountDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(asUser(12, 2), createRequest("SN9"))
	require.ErrorIs(t, err, subscriptiondomain.ErrNoCurrentSubscription)

	_, err = f.svc.Create(asUser(10, 1), createRequest("SN9"))
	require.ErrorIs(t, err, casedomain.ErrDeviceWrongAccount)

	_, err = f.svc.Create(asUser(10, 1), createRequest("NOPE"))
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "device", verr.Errors[0].Field)
	assert.Equal(t, devicedomain.StatusAvailable, f.deviceStatus(t, 209))
}

func TestCreateValidatesPatient(t *testing.T) {
	f := newFixture(t)

	req := createRequest("SN1")
	req.Patient.Gender = "Other"
	req.Patient.DateOfBirth = "2027-01-01"
	req.Patient.Zipcode = "123456789012"
	req.Timezone = "Mars/Olympus"

	_, err := f.svc.Create(asUser(10, 1), req)
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	fields := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"patient.gender", "patient.date_of_birth", "patient.zipcode", "timezone"}, fields)
	assert.Equal(t, devicedomain.StatusAvailable, f.deviceStatus(t, 201))
}

func TestCreateRollsBackOnInvalidRole(t *testing.T) {
	f := newFixture(t)

	req := createRequest("SN1")
	req.Roles = caseroledomain.Assignment{caseroledomain.RoleCaseManager: {12}}

	_, err := f.svc.Create(asUser(10, 1), req)
	_, ok := apperr.AsValidation(err)
	require.True(t, ok)

	assert.Equal(t, devicedomain.StatusAvailable, f.deviceStatus(t, 201))
	assert.Zero(t, f.count(t, &casedomain.Case{}, ""))
	assert.Zero(t, f.count(t, &casedomain.CaseDevice{}, ""))
}

func TestCreateWithParentContact(t *testing.T) {
	f := newFixture(t)

	req := createRequest("SN1")
	req.Parent = &casedomain.ParentRequest{
		FirstName:     "Mia",
		LastName:      "Rivers",
		Relationship:  "Mother",
		Email:         "Mia@Mail.test",
		CreateContact: true,
	}
	c, err := f.svc.Create(asUser(10, 1), req)
	require.NoError(t, err)

	var contact userdomain.User
	require.NoError(t, f.db.First(&contact, "email = ?", "mia@mail.test").Error)
	assert.Equal(t, principal.UserTypeContact, contact.UserType)
	require.NotNil(t, c.ParentUserID)
	assert.Equal(t, contact.ID, *c.ParentUserID)
	assert.Nil(t, c.ParentID)

	groups, _ := f.authz.GroupsOf(context.Background(), contact.ID)
	assert.ElementsMatch(t, []string{authorization.GroupContact, authorization.GroupParent}, groups)

	roles, err := f.svc.Roles(asUser(10, 1), c.CaseNo)
	require.NoError(t, err)
	require.NotNil(t, roles.Parent)
	assert.Equal(t, contact.ID, roles.Parent.ID)
}

func TestCreateWithParentRecord(t *testing.T) {
	f := newFixture(t)

	req := createRequest("SN1")
	req.Parent = &casedomain.ParentRequest{LastName: "Rivers", Title: "Mrs."}
	c, err := f.svc.Create(asUser(10, 1), req)
	require.NoError(t, err)

	require.NotNil(t, c.Parent)
	assert.Equal(t, "Rivers", c.Parent.Name)
	assert.Equal(t, "en", c.Parent.Language)
	assert.Nil(t, c.ParentUserID)
}

func TestUpdateAnnouncesOpenAndClose(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "SN1")
	f.notifier.reset()

	inactive, active := false, true
	updated, err := f.svc.Update(asUser(10, 1), c.CaseNo, casedomain.UpdateCaseRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.IsClosed)

	// Repeating the same state is silent.
	_, err = f.svc.Update(asUser(10, 1), c.CaseNo, casedomain.UpdateCaseRequest{IsActive: &inactive})
	require.NoError(t, err)

	updated, err = f.svc.Update(asUser(10, 1), c.CaseNo, casedomain.UpdateCaseRequest{IsActive: &active})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.False(t, updated.IsClosed)

	assert.Equal(t, []string{"Case Closed->10", "Case Opened->10"}, f.notifier.sent())
}

func TestUpdateChecksPatientPermission(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "SN1")
	f.authz.deny = map[authorization.Action]bool{authorization.ActionCasePatient: true}

	patient := createRequest("SN1").Patient
	patient.FirstName = "Nora"
	_, err := f.svc.Update(asUser(10, 1), c.CaseNo, casedomain.UpdateCaseRequest{Patient: &patient})
	require.ErrorIs(t, err, authorization.ErrForbidden)

	f.authz.deny = nil
	updated, err := f.svc.Update(asUser(10, 1), c.CaseNo, casedomain.UpdateCaseRequest{Patient: &patient})
	require.NoError(t, err)
	assert.Equal(t, "Nora", updated.Patient.FirstName)
}

func TestCloseReleasesDeviceToCheckout(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "SN1")
	f.notifier.reset()

	closed, err := f.svc.Close(asUser(10, 1), c.CaseNo)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	assert.True(t, closed.IsClosed)
	assert.Equal(t, devicedomain.StatusInCheckout, f.deviceStatus(t, 201))
	assert.Equal(t, []string{"Case Closed->10"}, f.notifier.sent())

	_, err = f.svc.Close(asUser(10, 1), c.CaseNo)
	require.ErrorIs(t, err, casedomain.ErrCaseAlreadyClosed)
}

func TestChangeDevice(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "SN1")
	f.notifier.reset()

	_, err := f.svc.ChangeDevice(asUser(10, 1), c.CaseNo, casedomain.ChangeDeviceRequest{
		OldDevice: "SN2", OldDeviceStatus: devicedomain.StatusAvailable, NewDevice: "SN1",
	})
	require.ErrorIs(t, err, casedomain.ErrDeviceNotOnCase)

	changed, err := f.svc.ChangeDevice(asUser(10, 1), c.CaseNo, casedomain.ChangeDeviceRequest{
		OldDevice: "SN1", OldDeviceStatus: devicedomain.StatusLostBroken, NewDevice: "SN2",
	})
	require.NoError(t, err)
	require.NotNil(t, changed.Device)
	assert.Equal(t, "SN2", changed.Device.SerialNumber)
	assert.Equal(t, devicedomain.StatusLostBroken, f.deviceStatus(t, 201))
	assert.Equal(t, devicedomain.StatusAssigned, f.deviceStatus(t, 202))
	assert.Equal(t, int64(1), f.count(t, &casedomain.CaseDevice{}, "case_id = ? AND is_active = ?", c.ID, true))
	assert.Equal(t, []string{"Case Device Changed->10"}, f.notifier.sent())
}

func TestChangeDeviceRejectsUnavailableReplacement(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "SN1")

	_, err := f.svc.ChangeDevice(asUser(10, 1), c.CaseNo, casedomain.ChangeDeviceRequest{
		OldDevice: "SN1", OldDeviceStatus: devicedomain.StatusAvailable, NewDevice: "SN3",
	})
	require.ErrorIs(t, err, devicedomain.ErrDeviceUnavailable)
	assert.Equal(t, devicedomain.StatusAssigned, f.deviceStatus(t, 201))
}

func TestArchiveSkipsActiveCases(t *testing.T) {
	f := newFixture(t)
	open := f.create(t, "SN1")
	closed := f.create(t, "SN2")
	_, err := f.svc.Close(asUser(10, 1), closed.CaseNo)
	require.NoError(t, err)
	f.notifier.reset()

	result, err := f.svc.Archive(asSuperuser(), casedomain.ArchiveRequest{Cases: []string{open.CaseNo, closed.CaseNo, "9999999"}})
	require.NoError(t, err)
	assert.Equal(t, []string{closed.CaseNo}, result.Archived)
	assert.ElementsMatch(t, []string{open.CaseNo, "9999999"}, result.Skipped)
	assert.Equal(t, []string{"Case Archived->10"}, f.notifier.sent())

	listed, err := f.svc.List(asUser(10, 1), casedomain.ListCaseRequest{})
	require.NoError(t, err)
	require.Len(t, listed.Cases, 1)
	assert.Equal(t, open.CaseNo, listed.Cases[0].CaseNo)

	_, err = f.svc.UpdateRoles(asUser(10, 1), closed.CaseNo, caseroledomain.Assignment{})
	require.ErrorIs(t, err, casedomain.ErrCaseArchived)

	restored, err := f.svc.Unarchive(asSuperuser(), casedomain.ArchiveRequest{Cases: []string{closed.CaseNo, open.CaseNo}})
	require.NoError(t, err)
	assert.Equal(t, []string{closed.CaseNo}, restored.Archived)
	assert.Equal(t, []string{open.CaseNo}, restored.Skipped)
}

func TestArchiveRequiresPermission(t *testing.T) {
	f := newFixture(t)
	f.authz.deny = map[authorization.Action]bool{authorization.ActionCaseArchive: true}

	_, err := f.svc.Archive(asUser(10, 1), casedomain.ArchiveRequest{Cases: []string{"0000001"}})
	require.ErrorIs(t, err, authorization.ErrForbidden)
	_, err = f.svc.ListToArchive(asUser(10, 1), "01-01-2026")
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestListToArchive(t *testing.T) {
	f := newFixture(t)
	stale := f.create(t, "SN1")
	_, err := f.svc.Close(asUser(10, 1), stale.CaseNo)
	require.NoError(t, err)

	f.clock.Advance(30 * 24 * time.Hour)
	recent := f.create(t, "SN2")
	_, err = f.svc.Close(asUser(10, 1), recent.CaseNo)
	require.NoError(t, err)

	items, err := f.svc.ListToArchive(asSuperuser(), "20-03-2026")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, stale.CaseNo, items[0].CaseNo)
	require.NotNil(t, items[0].Patient)

	_, err = f.svc.ListToArchive(asSuperuser(), "yesterday-ish")
	_, ok := apperr.AsValidation(err)
	assert.True(t, ok)
}

func TestListIsScopedToVisibleCases(t *testing.T) {
	f := newFixture(t)
	own := f.create(t, "SN1")

	now := f.clock.Now()
	require.NoError(t, f.db.Create(&casedomain.Patient{ID: 800, FirstName: "Eli", LastName: "South", Gender: "Male", Address1: "2 Side St", Zipcode: "20002", DateOfBirth: now, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, f.db.Create(&casedomain.Case{ID: 801, CaseNo: "0000900", Slug: "0000900", PatientID: 800, AccountID: 2, IsActive: true, Timezone: "UTC", CreatedAt: now, UpdatedAt: now}).Error)

	f.authz.codes = authorization.NewCodeSet(authorization.CaseListAccount)
	listed, err := f.svc.List(asUser(10, 1), casedomain.ListCaseRequest{})
	require.NoError(t, err)
	require.Len(t, listed.Cases, 1)
	assert.Equal(t, own.CaseNo, listed.Cases[0].CaseNo)
	assert.Equal(t, int64(1), listed.Total)
	require.NotNil(t, listed.Cases[0].Patient)
	assert.Equal(t, "Noa", listed.Cases[0].Patient.FirstName)

	f.authz.codes = authorization.NewCodeSet()
	listed, err = f.svc.List(asUser(10, 1), casedomain.ListCaseRequest{})
	require.NoError(t, err)
	assert.Empty(t, listed.Cases)
}

func TestGetRequiresPermission(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "SN1")
	f.authz.deny = map[authorization.Action]bool{authorization.ActionCaseView: true}

	_, err := f.svc.Get(asUser(12, 2), c.CaseNo)
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Get(asUser(12, 2), "0000404")
	require.ErrorIs(t, err, casedomain.ErrCaseNotFound)
}

func TestMatrixDelegation(t *testing.T) {
	f := newFixture(t)
	req := createRequest("SN1")
	req.NotificationMatrix = []matrixdomain.Override{{Role: "parent", NotificationType: "case-closed", IsNotified: false}}
	c, err := f.svc.Create(asUser(10, 1), req)
	require.NoError(t, err)

	entries, err := f.svc.Matrix(asUser(10, 1), c.CaseNo)
	require.NoError(t, err)
	for _, e := range entries {
		if e.RoleSlug == "parent" && e.NotificationTypeSlug == "case-closed" {
			assert.False(t, e.IsNotified)
		}
		if e.RoleSlug == "parent" && e.NotificationTypeSlug == "case-opened" {
			assert.True(t, e.IsNotified)
		}
	}

	updated, err := f.svc.UpdateMatrix(asUser(10, 1), c.CaseNo, []matrixdomain.Override{{Role: "parent", NotificationType: "case-closed", IsNotified: true}})
	require.NoError(t, err)
	assert.Len(t, updated, len(entries))
}
