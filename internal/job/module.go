package job

import "go.uber.org/fx"

// Module contributes taxiEmissionsJob to the "jobs" group.
var Module = fx.Provide(
	fx.Annotate(NewTaxiEmissionsJob, fx.ResultTags(`group:"jobs"`)),
)
