package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter implements fxevent.Logger on top of this package.
// Container plumbing goes to DEBUG so that INFO output stays focused on the batch run.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates the adapter passed to fx.WithLogger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent logs events from Fx.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		Debugf("OnStart hook executing: %s", shortFuncName(e.FunctionName))
	case *fxevent.OnStartExecuted:
		hookResult("OnStart", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuting:
		Debugf("OnStop hook executing: %s", shortFuncName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		hookResult("OnStop", e.FunctionName, e.Runtime.String(), e.Err)
	case *fxevent.Supplied:
		if e.Err != nil {
			Errorf("Supply of %s failed: %v", e.TypeName, e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			Errorf("Provide via %s failed: %v", shortFuncName(e.ConstructorName), e.Err)
			return
		}
		for _, t := range e.OutputTypeNames {
			Debugf("Provided: %s", t)
		}
	case *fxevent.Decorated:
		if e.Err != nil {
			Errorf("Decorate via %s failed: %v", shortFuncName(e.DecoratorName), e.Err)
		}
	case *fxevent.Invoking:
		Debugf("Invoking: %s", shortFuncName(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			Errorf("Invoke %s failed: %v", shortFuncName(e.FunctionName), e.Err)
		}
	case *fxevent.Stopping:
		Infof("Received signal %s, stopping.", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			Errorf("Stop failed: %v", e.Err)
		}
	case *fxevent.RollingBack:
		Errorf("Start failed, rolling back: %v", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			Errorf("Rollback failed: %v", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			Errorf("Start failed: %v", e.Err)
		} else {
			Debugf("Application container started.")
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			Errorf("Custom logger initialization failed: %v", e.Err)
		}
	}
}

func hookResult(kind, fn, runtime string, err error) {
	if err != nil {
		Errorf("%s hook %s failed after %s: %v", kind, shortFuncName(fn), runtime, err)
		return
	}
	Debugf("%s hook %s done in %s", kind, shortFuncName(fn), runtime)
}

// shortFuncName trims the ".funcN" suffix fx reports for closures.
func shortFuncName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
