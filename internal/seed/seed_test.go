package seed

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/auth/password"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	"github.com/smallbiznis/caseline/internal/clock"
	"github.com/smallbiznis/caseline/internal/config"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	userrepository "github.com/smallbiznis/caseline/internal/user/repository"
	"github.com/smallbiznis/caseline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rolesStub struct {
	caseroledomain.Service
	calls *[]string
}

func (r rolesStub) EnsureDefaults(context.Context) error {
	*r.calls = append(*r.calls, "roles")
	return nil
}

type matrixStub struct {
	matrixdomain.Service
	calls *[]string
}

func (m matrixStub) EnsureDefaults(context.Context) error {
	*m.calls = append(*m.calls, "matrix")
	return nil
}

func newParams(t *testing.T, bootstrap config.BootstrapConfig, calls *[]string) Params {
	t.Helper()
	conn, err := db.NewTest(&userdomain.User{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
		Config: config.Config{Bootstrap: bootstrap},
		Users:  userrepository.Provide(),
		Roles:  rolesStub{calls: calls},
		Matrix: matrixStub{calls: calls},
	}
}

func TestRunSeedsRolesBeforeMatrix(t *testing.T) {
	var calls []string
	p := newParams(t, config.BootstrapConfig{}, &calls)

	require.NoError(t, Run(context.Background(), p))
	assert.Equal(t, []string{"roles", "matrix"}, calls)

	var count int64
	require.NoError(t, p.DB.Model(&userdomain.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEnsureSuperuserIsIdempotent(t *testing.T) {
	var calls []string
	p := newParams(t, config.BootstrapConfig{SuperuserEmail: " Admin@Example.com ", SuperuserPassword: "s3cret"}, &calls)
	ctx := context.Background()

	require.NoError(t, EnsureSuperuser(ctx, p))
	require.NoError(t, EnsureSuperuser(ctx, p))

	var users []userdomain.User
	require.NoError(t, p.DB.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "admin@example.com", users[0].Email)
	assert.True(t, users[0].IsSuperuser)
	assert.True(t, users[0].IsActive)
	require.NotNil(t, users[0].PasswordHash)
	assert.True(t, password.Verify("s3cret", *users[0].PasswordHash))
}

func TestEnsureSuperuserRequiresPassword(t *testing.T) {
	var calls []string
	p := newParams(t, config.BootstrapConfig{SuperuserEmail: "admin@example.com"}, &calls)

	assert.Error(t, EnsureSuperuser(context.Background(), p))
}
