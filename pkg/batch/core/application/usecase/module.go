package usecase

import "go.uber.org/fx"

// Module provides the JobRegistry, JobLauncher, JobOperator and JobExplorer.
var Module = fx.Options(
	fx.Provide(NewJobRegistry),
	fx.Provide(NewSimpleJobLauncher),
	fx.Provide(func(l *SimpleJobLauncher) JobLauncher { return l }),
	fx.Provide(fx.Annotate(NewSimpleJobOperator, fx.As(new(JobOperator)))),
	fx.Provide(NewSimpleJobExplorer),
	fx.Provide(func(e *SimpleJobExplorer) JobExplorer { return e }),
)
