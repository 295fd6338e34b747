package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/authorization"
	casedomain "github.com/smallbiznis/caseline/internal/cases/domain"
	caserepo "github.com/smallbiznis/caseline/internal/cases/repository"
	"github.com/smallbiznis/caseline/internal/clock"
	interpretationdomain "github.com/smallbiznis/caseline/internal/interpretation/domain"
	"github.com/smallbiznis/caseline/internal/interpretation/repository"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzStub struct {
	authorization.Service
	deny map[authorization.Action]bool
}

func (a *authzStub) Check(_ context.Context, _ principal.Principal, action authorization.Action, _ *authorization.Target) error {
	if a.deny[action] {
		return authorization.ErrForbidden
	}
	return nil
}

type casesStub struct {
	casedomain.Service
	mu   sync.Mutex
	sent []string
}

func (c *casesStub) Notify(_ context.Context, item *casedomain.Case, notificationType string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, notificationType+" "+item.CaseNo+" "+data["date_from"].(string)+".."+data["date_to"].(string))
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	authz *authzStub
	cases *casesStub
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest(
		&casedomain.Case{},
		&interpretationdomain.Interpretation{},
		&interpretationdomain.CaseEvent{},
	)
	require.NoError(t, err)

	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	for _, c := range []*casedomain.Case{
		{ID: 101, CaseNo: "0000001", Slug: "0000001", PatientID: 1, AccountID: 1, IsActive: true},
		{ID: 102, CaseNo: "0000002", Slug: "0000002", PatientID: 2, AccountID: 1, IsArchived: true},
	} {
		c.Timezone = "UTC"
		c.CreatedAt, c.UpdatedAt = now, now
		require.NoError(t, conn.Create(c).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	authz := &authzStub{deny: map[authorization.Action]bool{}}
	cases := &casesStub{}
	svc := NewService(ServiceParam{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(now),
		Repo:     repository.Provide(),
		CaseRepo: caserepo.Provide(),
		Cases:    cases,
		Authz:    authz,
	})
	return fixture{svc: svc.(*Service), db: conn, authz: authz, cases: cases}
}

func asUser() context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:    10,
		AccountID: 1,
		UserType:  principal.UserTypeUser,
	})
}

func (f fixture) events(t *testing.T, caseID snowflake.ID, at ...time.Time) {
	t.Helper()
	events := make([]*interpretationdomain.CaseEvent, 0, len(at))
	for i, ts := range at {
		events = append(events, &interpretationdomain.CaseEvent{
			ID:         snowflake.ID(9000 + i),
			CaseID:     caseID,
			OccurredAt: ts,
			Kind:       "seizure",
			CreatedAt:  ts,
		})
	}
	require.NoError(t, repository.Provide().InsertEvents(context.Background(), f.db, events))
}

func window(from, to string) interpretationdomain.CreateInterpretationRequest {
	return interpretationdomain.CreateInterpretationRequest{DateFrom: from, DateTo: to}
}

func TestOverlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	cases := []struct {
		name       string
		aFrom, aTo time.Time
		bFrom, bTo time.Time
		want       bool
	}{
		{"disjoint", day(1), day(5), day(10), day(12), false},
		{"adjacent", day(1), day(5), day(6), day(9), false},
		{"shared edge", day(1), day(5), day(5), day(9), true},
		{"contained", day(1), day(20), day(3), day(4), true},
		{"single day", day(7), day(7), day(7), day(7), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, interpretationdomain.Overlaps(tc.aFrom, tc.aTo, tc.bFrom, tc.bTo))
			assert.Equal(t, tc.want, interpretationdomain.Overlaps(tc.bFrom, tc.bTo, tc.aFrom, tc.aTo))
		})
	}
}

func TestCreateRejectsOverlappingWindows(t *testing.T) {
	f := newFixture(t)
	ctx := asUser()

	first, err := f.svc.Create(ctx, "0000001", window("2024-01-15", "2024-02-15"))
	require.NoError(t, err)
	assert.Equal(t, "0000001-2024-01-15-2024-02-15", first.Slug)

	_, err = f.svc.Create(ctx, "0000001", window("2024-01-01", "2024-01-31"))
	require.ErrorIs(t, err, interpretationdomain.ErrOverlap)

	_, err = f.svc.Create(ctx, "0000001", window("2024-01-01", "2024-01-15"))
	require.ErrorIs(t, err, interpretationdomain.ErrOverlap)

	_, err = f.svc.Create(ctx, "0000001", window("2024-01-01", "2024-01-14"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "0000001", window("16-02-2024", "28-02-2024"))
	require.NoError(t, err)

	items, err := f.svc.List(ctx, "0000001")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "0000001-2024-01-01-2024-01-14", items[0].Slug)
}

func TestCreateValidatesWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(asUser(), "0000001", window("2024-02-10", "2024-02-01"))
	verr, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "date_to", verr.Errors[0].Field)

	_, err = f.svc.Create(asUser(), "0000001", window("soon", ""))
	verr, ok = apperr.AsValidation(err)
	require.True(t, ok)
	assert.Len(t, verr.Errors, 2)

	_, err = f.svc.Create(asUser(), "0000002", window("2024-02-01", "2024-02-10"))
	require.ErrorIs(t, err, casedomain.ErrCaseArchived)

	_, err = f.svc.Create(asUser(), "0000404", window("2024-02-01", "2024-02-10"))
	require.ErrorIs(t, err, casedomain.ErrCaseNotFound)
}

func TestCreateCountsAndMarksEvents(t *testing.T) {
	f := newFixture(t)
	f.events(t, 101,
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 7, 6, 30, 0, 0, time.UTC),
	)

	item, err := f.svc.Create(asUser(), "0000001", window("2024-03-01", "2024-03-05"))
	require.NoError(t, err)
	assert.Equal(t, 2, item.NoOfEvents)
	assert.Equal(t, []string{matrixdomain.TypeInterpretationCreated + " 0000001 2024-03-01..2024-03-05"}, f.cases.sent)

	var pending int64
	require.NoError(t, f.db.Model(&interpretationdomain.CaseEvent{}).Where("is_interpreted = ?", false).Count(&pending).Error)
	assert.Equal(t, int64(1), pending)

	summary, err := f.svc.Summary(asUser(), "0000001", "", "")
	require.NoError(t, err)
	assert.Equal(t, interpretationdomain.Summary{CaseNo: "0000001", DateFrom: "2024-03-07", DateTo: "2024-03-07", NoOfEvents: 1}, summary)

	summary, err = f.svc.Summary(asUser(), "0000001", "2024-02-01", "2024-03-31")
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.NoOfEvents)
}

func TestSummaryWithoutPendingEvents(t *testing.T) {
	f := newFixture(t)

	summary, err := f.svc.Summary(asUser(), "0000001", "", "")
	require.NoError(t, err)
	assert.Equal(t, interpretationdomain.Summary{CaseNo: "0000001"}, summary)
}

func TestApproveOnce(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Create(asUser(), "0000001", window("2024-01-01", "2024-01-31"))
	require.NoError(t, err)

	approved, err := f.svc.Approve(asUser(), item.Slug)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, snowflake.ID(10), *approved.ApprovedBy)

	_, err = f.svc.Approve(asUser(), item.Slug)
	require.ErrorIs(t, err, interpretationdomain.ErrAlreadyApproved)

	got, err := f.svc.Get(asUser(), item.Slug)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)
	assert.Contains(t, f.cases.sent, matrixdomain.TypeInterpretationApproved+" 0000001 2024-01-01..2024-01-31")
}

func TestPermissionsAreChecked(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Create(asUser(), "0000001", window("2024-01-01", "2024-01-31"))
	require.NoError(t, err)

	f.authz.deny[authorization.ActionInterpretationApprove] = true
	_, err = f.svc.Approve(asUser(), item.Slug)
	require.ErrorIs(t, err, authorization.ErrForbidden)

	f.authz.deny[authorization.ActionInterpretationView] = true
	_, err = f.svc.List(asUser(), "0000001")
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Get(context.Background(), item.Slug)
	require.ErrorIs(t, err, principal.ErrUnauthenticated)

	_, err = f.svc.Get(asUser(), "missing")
	require.ErrorIs(t, err, interpretationdomain.ErrInterpretationNotFound)
}
