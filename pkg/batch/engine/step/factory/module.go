package factory

import "go.uber.org/fx"

// Module provides *StepFactory.
var Module = fx.Provide(NewStepFactory)
