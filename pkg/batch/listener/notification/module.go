package notification

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
)

// Module provides the LogNotifier and registers its job listener.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLogNotifier, fx.As(new(Notifier)))),
	fx.Provide(fx.Annotate(NewNotificationListener, fx.As(new(port.JobExecutionListener)), fx.ResultTags(`group:"job_listeners"`))),
)
