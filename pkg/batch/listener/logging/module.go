package logging

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
)

// Module registers the logging listeners in the job, step and chunk listener groups.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLoggingJobListener, fx.As(new(port.JobExecutionListener)), fx.ResultTags(`group:"job_listeners"`))),
	fx.Provide(fx.Annotate(NewLoggingStepListener, fx.As(new(port.StepExecutionListener)), fx.ResultTags(`group:"step_listeners"`))),
	fx.Provide(fx.Annotate(NewLoggingChunkListener, fx.As(new(port.ChunkListener)), fx.ResultTags(`group:"chunk_listeners"`))),
)
