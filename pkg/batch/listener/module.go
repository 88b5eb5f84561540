// Package listener aggregates the listener modules of the batch framework.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/taxiemissions/pkg/batch/listener/logging"
	"github.com/tigerroll/taxiemissions/pkg/batch/listener/notification"
)

var Module = fx.Options(
	logging.Module,
	notification.Module,
)
