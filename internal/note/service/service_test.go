package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/authorization"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	caserolerepo "github.com/smallbiznis/caseline/internal/caserole/repository"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	caserepo "github.com/smallbiznis/caseline/internal/cases/repository"
	"github.com/smallbiznis/caseline/internal/clock"
	notedomain "github.com/smallbiznis/caseline/internal/note/domain"
	"github.com/smallbiznis/caseline/internal/note/repository"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzStub struct {
	authorization.Service
	codes authorization.CodeSet
	deny  map[authorization.Action]bool
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

type casesStub struct {
	casedomain.Service
	mu   sync.Mutex
	sent []string
}

func (c *casesStub) Notify(_ context.Context, item *casedomain.Case, notificationType string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, notificationType+" "+item.CaseNo)
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.FakeClock
	authz *authzStub
	cases *casesStub
}

// User 10 is Case Manager and Scorer on case 0000001; nobody holds a role
// on case 0000002, which is archived.
func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest(
		&casedomain.Case{},
		&caseroledomain.DefaultRole{},
		&caseroledomain.CaseRole{},
		&notedomain.ProviderNote{},
	)
	require.NoError(t, err)

	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	for _, c := range []*casedomain.Case{
		{ID: 101, CaseNo: "0000001", Slug: "0000001", PatientID: 1, AccountID: 1, IsActive: true},
		{ID: 102, CaseNo: "0000002", Slug: "0000002", PatientID: 2, AccountID: 1, IsArchived: true},
		{ID: 103, CaseNo: "0000003", Slug: "0000003", PatientID: 3, AccountID: 1, IsActive: true},
	} {
		c.Timezone = "UTC"
		c.CreatedAt, c.UpdatedAt = now, now
		require.NoError(t, conn.Create(c).Error)
	}
	for i, name := range caseroledomain.DefaultRoles {
		require.NoError(t, conn.Create(&caseroledomain.DefaultRole{
			ID: snowflake.ID(500 + i), Name: name, Slug: name, CreatedAt: now,
		}).Error)
	}
	require.NoError(t, conn.Create(&[]caseroledomain.CaseRole{
		{ID: 601, CaseID: 101, DefaultRoleID: 501, UserID: 10, CreatedAt: now},
		{ID: 602, CaseID: 101, DefaultRoleID: 500, UserID: 10, CreatedAt: now},
		{ID: 603, CaseID: 103, DefaultRoleID: 500, UserID: 11, CreatedAt: now},
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)
	authz := &authzStub{codes: authorization.AllCodes(), deny: map[authorization.Action]bool{}}
	cases := &casesStub{}
	svc := NewService(ServiceParam{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		CaseRepo: caserepo.Provide(),
		Cases:    cases,
		Roles:    caserolerepo.Provide(),
		Authz:    authz,
	})
	return fixture{svc: svc.(*Service), db: conn, clock: clk, authz: authz, cases: cases}
}

func as(userID snowflake.ID) context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:    userID,
		AccountID: 1,
		UserType:  principal.UserTypeUser,
	})
}

func TestCreateRecordsAuthorRoles(t *testing.T) {
	f := newFixture(t)

	note, err := f.svc.Create(as(10), "0000001", notedomain.CreateNoteRequest{
		Subject: " Night study ",
		Content: "Tolerated the sensors well.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Night study", note.Subject)
	assert.Equal(t, snowflake.ID(10), note.UserID)
	assert.Equal(t, []string{caseroledomain.RoleCaseManager, caseroledomain.RoleScorer}, []string(note.DefaultCaseRoles))
	assert.Contains(t, note.Slug, "0000001-night-study-")
	assert.Equal(t, []string{matrixdomain.TypeCaseNoteAdded + " 0000001"}, f.cases.sent)

	got, err := f.svc.Get(as(10), note.Slug)
	require.NoError(t, err)
	assert.Equal(t, note.ID, got.ID)
	assert.Equal(t, []string{caseroledomain.RoleCaseManager, caseroledomain.RoleScorer}, []string(got.DefaultCaseRoles))
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(as(10), "0000001", notedomain.CreateNoteRequest{Subject: "  "})
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, verr.Errors, 2)

	_, err = f.svc.Create(as(10), "0000002", notedomain.CreateNoteRequest{Subject: "a", Content: "b"})
	require.ErrorIs(t, err, casedomain.ErrCaseArchived)

	f.authz.deny[authorization.ActionCaseNoteWrite] = true
	_, err = f.svc.Create(as(10), "0000001", notedomain.CreateNoteRequest{Subject: "a", Content: "b"})
	require.ErrorIs(t, err, authorization.ErrForbidden)
	assert.Empty(t, f.cases.sent)
}

func TestListByCaseNewestFirst(t *testing.T) {
	f := newFixture(t)
	for _, subject := range []string{"first", "second", "third"} {
		_, err := f.svc.Create(as(10), "0000001", notedomain.CreateNoteRequest{Subject: subject, Content: "x"})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	res, err := f.svc.ListByCase(as(10), "0000001", pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.True(t, res.HasMore)
	require.Len(t, res.Notes, 2)
	assert.Equal(t, "third", res.Notes[0].Subject)
	assert.Equal(t, "second", res.Notes[1].Subject)

	f.authz.deny[authorization.ActionCaseNoteView] = true
	_, err = f.svc.ListByCase(as(10), "0000001", pagination.Pagination{})
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestListIsScopedToAssignedCases(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(as(10), "0000001", notedomain.CreateNoteRequest{Subject: "mine", Content: "x"})
	require.NoError(t, err)
	_, err = f.svc.Create(as(11), "0000003", notedomain.CreateNoteRequest{Subject: "theirs", Content: "x"})
	require.NoError(t, err)

	f.authz.codes = authorization.NewCodeSet(authorization.CaseNoteAssigned)
	res, err := f.svc.List(as(10), notedomain.ListNoteRequest{})
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "mine", res.Notes[0].Subject)

	f.authz.codes = authorization.NewCodeSet()
	res, err = f.svc.List(as(10), notedomain.ListNoteRequest{})
	require.NoError(t, err)
	assert.Empty(t, res.Notes)

	f.authz.codes = authorization.AllCodes()
	res, err = f.svc.List(as(10), notedomain.ListNoteRequest{Case: "0000003"})
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "theirs", res.Notes[0].Subject)
}
