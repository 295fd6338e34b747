package notificationmatrix

import (
	"github.com/smallbiznis/caseline/internal/notificationmatrix/repository"
	"github.com/smallbiznis/caseline/internal/notificationmatrix/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notificationmatrix.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
