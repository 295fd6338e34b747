package association

import (
	"github.com/smallbiznis/caseline/internal/association/repository"
	"github.com/smallbiznis/caseline/internal/association/service"
	"go.uber.org/fx"
)

var Module = fx.Module("association.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideParties),
	fx.Provide(service.NewService),
)
