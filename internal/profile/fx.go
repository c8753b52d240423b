package profile

import (
	"github.com/smallbiznis/frostclub/internal/profile/repository"
	"github.com/smallbiznis/frostclub/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
