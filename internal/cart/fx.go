package cart

import "go.uber.org/fx"

var Module = fx.Module("cart",
	fx.Provide(NewStore),
	fx.Provide(NewService),
)
