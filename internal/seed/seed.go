// Package seed brings a fresh database to a usable state: the bootstrap
// superuser, the default case roles and the default notification matrix.
package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/caseline/internal/auth/password"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	"github.com/smallbiznis/caseline/internal/clock"
	"github.com/smallbiznis/caseline/internal/config"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/internal/principal"
	userdomain "github.com/smallbiznis/caseline/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, p Params) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return Run(ctx, p)
			},
		})
	}),
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Users  userdomain.Repository
	Roles  caseroledomain.Service
	Matrix matrixdomain.Service
}

// Run is idempotent. Roles must exist before the matrix, which references them.
func Run(ctx context.Context, p Params) error {
	log := p.Log.Named("seed")
	if err := EnsureSuperuser(ctx, p); err != nil {
		return err
	}
	if err := p.Roles.EnsureDefaults(ctx); err != nil {
		return err
	}
	if err := p.Matrix.EnsureDefaults(ctx); err != nil {
		return err
	}
	log.Info("seed complete")
	return nil
}

// EnsureSuperuser creates the bootstrap superuser when one is configured
// and no user with that email exists yet.
func EnsureSuperuser(ctx context.Context, p Params) error {
	email := strings.ToLower(strings.TrimSpace(p.Config.Bootstrap.SuperuserEmail))
	if email == "" {
		return nil
	}
	_, err := p.Users.FindByEmail(ctx, p.DB, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, userdomain.ErrUserNotFound) {
		return err
	}
	if p.Config.Bootstrap.SuperuserPassword == "" {
		return errors.New("bootstrap superuser password is required")
	}

	hashed, err := password.Hash(p.Config.Bootstrap.SuperuserPassword)
	if err != nil {
		return err
	}
	now := p.Clock.Now()
	id := p.GenID.Generate()
	user := &userdomain.User{
		ID:           id,
		Email:        email,
		FirstName:    "Super",
		LastName:     "User",
		Slug:         slug.Make("super-user-" + id.String()),
		UserType:     principal.UserTypeUser,
		IsSuperuser:  true,
		IsActive:     true,
		PasswordHash: &hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.Users.Insert(ctx, p.DB, user); err != nil {
		return err
	}
	p.Log.Named("seed").Info("bootstrap superuser created", zap.String("user_id", id.String()))
	return nil
}
