package interpretation

import (
	"github.com/smallbiznis/caseline/internal/interpretation/repository"
	"github.com/smallbiznis/caseline/internal/interpretation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("interpretation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
