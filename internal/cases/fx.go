package cases

import (
	"github.com/smallbiznis/caseline/internal/cases/repository"
	"github.com/smallbiznis/caseline/internal/cases/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cases.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
