package submission

import "go.uber.org/fx"

var Module = fx.Module("submission",
	fx.Provide(NewService),
)
