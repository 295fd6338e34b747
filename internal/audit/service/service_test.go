package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/caseline/internal/audit/domain"
	"github.com/smallbiznis/caseline/internal/audit/repository"
	obscontext "github.com/smallbiznis/caseline/internal/observability/context"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()

	conn, err := db.NewTest(&auditdomain.AuditLog{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()})
}

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	svc := newTestService(t)

	ctx := obscontext.WithActor(context.Background(), "user", "42")
	ctx = obscontext.WithAccountID(ctx, "7")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "curl/8")

	target := "123"
	err := svc.AuditLog(ctx, nil, "", nil, "account.acquire", "account", &target, map[string]any{
		"password": "hunter22",
		"name":     "North Clinic",
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "42", *entry.ActorID)
	require.NotNil(t, entry.AccountID)
	assert.Equal(t, snowflake.ID(7), *entry.AccountID)
	assert.Equal(t, "****er22", entry.Metadata["password"])
	assert.Equal(t, "North Clinic", entry.Metadata["name"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc := newTestService(t)

	err := svc.AuditLog(context.Background(), nil, "system", nil, "  ", "account", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, nil, "system", nil, "authorization.denied", "authorization", nil, nil))
	}
	require.NoError(t, svc.AuditLog(ctx, nil, "system", nil, "case.archive", "case", nil, nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{Page: 1, PageSize: 2},
		Action:     "authorization.denied",
	})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)
	assert.Equal(t, int64(3), resp.Total)
	assert.True(t, resp.HasMore)
	for _, entry := range resp.AuditLogs {
		assert.Equal(t, "system", entry.ActorType)
		assert.Nil(t, entry.ActorID)
	}
}
