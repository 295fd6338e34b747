package importer

import (
	"github.com/smallbiznis/caseline/internal/importer/repository"
	"github.com/smallbiznis/caseline/internal/importer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("importer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
