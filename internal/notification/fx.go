package notification

import (
	notificationdomain "github.com/smallbiznis/caseline/internal/notification/domain"
	"github.com/smallbiznis/caseline/internal/notification/repository"
	"github.com/smallbiznis/caseline/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(svc notificationdomain.Service) notificationdomain.Dispatcher { return svc }),
)
