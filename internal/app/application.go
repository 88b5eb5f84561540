package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/taxiemissions/internal/job"
	"github.com/tigerroll/taxiemissions/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// stopGracePeriod bounds how long a stopped job may take to record its final state.
const stopGracePeriod = 30 * time.Second

// Resources are the files embedded in the binary.
type Resources struct {
	Config        config.EmbeddedConfig
	Migrations    fs.FS // one directory per database type
	EmissionsSeed []byte
}

// RunApplication loads the configuration, runs the configured job once and returns the
// process exit code: 0 when the job completed, 130 when it was stopped, 1 otherwise.
// Cancelling appCtx stops the running job.
func RunApplication(appCtx context.Context, envFilePath string, res Resources) int {
	cfg, err := config.LoadConfig(envFilePath, res.Config)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return 1
	}
	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)

	starter := &jobStarter{done: make(chan struct{}), exitCode: 1}
	app := fx.New(
		fx.Supply(
			cfg,
			fx.Annotate(res.Migrations, fx.As(new(fs.FS)), fx.ResultTags(`name:"applicationMigrationsFS"`)),
			job.EmissionsSeed(res.EmissionsSeed),
			fx.Annotate(appCtx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
		),
		Module,
		fx.Invoke(fx.Annotate(starter.start, fx.ParamTags(``, ``, ``, ``, ``, ``, `name:"appCtx"`))),
	)
	if err := app.Err(); err != nil {
		logger.Errorf("Application setup failed: %v", err)
		return 1
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application start failed: %v", err)
		return 1
	}

	<-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Application stop failed: %v", err)
	}
	return starter.result()
}

// jobStarter launches the job when fx starts and records its exit code.
type jobStarter struct {
	done     chan struct{}
	exitCode int
}

// result returns the exit code of the job, or the STOPPED code when the application
// was stopped before the job reported an outcome.
func (s *jobStarter) result() int {
	select {
	case <-s.done:
		return s.exitCode
	default:
		return model.BatchStatusStopped.ExitCode()
	}
}

// start launches the configured job once fx has started and shuts the application down
// when the job ends.
func (s *jobStarter) start(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	launcher *usecase.SimpleJobLauncher,
	operator usecase.JobOperator,
	explorer usecase.JobExplorer,
	cfg *config.Config,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			jobName := cfg.Surfin.Batch.JobName
			if jobName == "" {
				jobName = job.JobName
			}
			jobExecution, err := launcher.Launch(appCtx, jobName, model.NewJobParameters())
			if err != nil {
				return fmt.Errorf("failed to launch job '%s': %w", jobName, err)
			}
			logger.Infof("Job '%s' launched. Execution ID: %s", jobName, jobExecution.ID)

			go func() {
				s.exitCode = monitor(appCtx, operator, explorer, jobExecution)
				close(s.done)
				if err := shutdowner.Shutdown(fx.ExitCode(s.exitCode)); err != nil {
					logger.Errorf("Failed to shutdown application: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			launcher.Wait()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

// monitor waits for jobExecution to finish. When appCtx ends first it asks the operator
// to stop the job and waits up to stopGracePeriod for the final state.
func monitor(appCtx context.Context, operator usecase.JobOperator, explorer usecase.JobExplorer, jobExecution *model.JobExecution) int {
	final, err := explorer.WaitForCompletion(appCtx, jobExecution.ID)
	if err == nil {
		logger.Infof("Job '%s' (Execution ID: %s) finished with status %s, exit status %s.",
			final.JobName, final.ID, final.Status, final.ExitStatus)
		return final.Status.ExitCode()
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Errorf("Failed to monitor JobExecution (ID: %s): %v", jobExecution.ID, err)
		return 1
	}

	logger.Warnf("Application context cancelled. Stopping JobExecution (ID: %s).", jobExecution.ID)
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGracePeriod)
	defer cancel()
	if err := operator.Stop(stopCtx, jobExecution.ID); err != nil {
		logger.Warnf("Stop request for JobExecution (ID: %s) failed: %v", jobExecution.ID, err)
	}
	final, err = explorer.WaitForCompletion(stopCtx, jobExecution.ID)
	if err != nil {
		logger.Errorf("JobExecution (ID: %s) did not record a final state: %v", jobExecution.ID, err)
		return model.BatchStatusStopped.ExitCode()
	}
	return final.Status.ExitCode()
}
