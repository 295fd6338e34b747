package caserole

import (
	"github.com/smallbiznis/caseline/internal/caserole/repository"
	"github.com/smallbiznis/caseline/internal/caserole/service"
	"go.uber.org/fx"
)

var Module = fx.Module("caserole.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
