package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/account"
	"github.com/smallbiznis/caseline/internal/association"
	"github.com/smallbiznis/caseline/internal/audit"
	"github.com/smallbiznis/caseline/internal/auth"
	"github.com/smallbiznis/caseline/internal/authorization"
	"github.com/smallbiznis/caseline/internal/cache"
	"github.com/smallbiznis/caseline/internal/caserole"
	"github.com/smallbiznis/caseline/internal/cases"
	"github.com/smallbiznis/caseline/internal/clock"
	"github.com/smallbiznis/caseline/internal/config"
	"github.com/smallbiznis/caseline/internal/device"
	"github.com/smallbiznis/caseline/internal/importer"
	"github.com/smallbiznis/caseline/internal/interpretation"
	"github.com/smallbiznis/caseline/internal/note"
	"github.com/smallbiznis/caseline/internal/notification"
	"github.com/smallbiznis/caseline/internal/notificationmatrix"
	"github.com/smallbiznis/caseline/internal/observability"
	"github.com/smallbiznis/caseline/internal/providers"
	"github.com/smallbiznis/caseline/internal/ratelimit"
	"github.com/smallbiznis/caseline/internal/scheduler"
	"github.com/smallbiznis/caseline/internal/subscription"
	"github.com/smallbiznis/caseline/internal/user"
	"github.com/smallbiznis/caseline/pkg/db"
	"go.uber.org/fx"
)

// Scheduler and notification delivery only. Migrations and seeds run in the API.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		ratelimit.Module,
		providers.Module,

		// Functional Domains
		authorization.Module,
		audit.Module,
		auth.Module,
		account.Module,
		subscription.Module,
		association.Module,
		user.Module,
		device.Module,
		caserole.Module,
		notificationmatrix.Module,
		cases.Module,
		interpretation.Module,
		note.Module,
		importer.Module,
		notification.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
