// Package notification reports the outcome of a job execution once it ends.
package notification

import (
	"context"
	"fmt"
	"strings"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	model "github.com/tigerroll/taxiemissions/pkg/batch/core/domain/model"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

// Notifier tells an external party how a job execution ended.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, execution *model.JobExecution)
}

// LogNotifier writes a per-step summary of the execution to the log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) {
	message := Summarize(execution)
	if execution.Status == model.BatchStatusCompleted {
		logger.Infof("%s", message)
	} else {
		logger.Warnf("%s", message)
	}
}

var _ Notifier = (*LogNotifier)(nil)

// Summarize renders the execution and every step with its counters.
// Steps that ended with a non-standard exit status are flagged.
func Summarize(execution *model.JobExecution) string {
	var b strings.Builder
	duration := "n/a"
	if execution.EndTime != nil {
		duration = execution.EndTime.Sub(execution.StartTime).String()
	}
	fmt.Fprintf(&b, "Job '%s' (ID: %s) finished with Status: %s, ExitStatus: %s. Duration: %s, Failures: %d",
		execution.JobName, execution.ID, execution.Status, execution.ExitStatus, duration, len(execution.Failures))

	for _, se := range execution.StepExecutionsSnapshot() {
		flag := ""
		if se.ExitStatus != model.ExitStatusCompleted {
			flag = " <-"
		}
		fmt.Fprintf(&b, "\n  %-28s %-10s %-26s read=%d filtered=%d written=%d commits=%d rollbacks=%d%s",
			se.StepName, se.Status, se.ExitStatus, se.ReadCount, se.FilterCount, se.WriteCount, se.CommitCount, se.RollbackCount, flag)
	}
	for _, f := range execution.Failures {
		fmt.Fprintf(&b, "\n  failure: %s", f)
	}
	return b.String()
}

// NotificationListener forwards AfterJob to a Notifier.
type NotificationListener struct {
	notifier Notifier
}

func NewNotificationListener(notifier Notifier) *NotificationListener {
	return &NotificationListener{notifier: notifier}
}

func (l *NotificationListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {}

func (l *NotificationListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.notifier.NotifyJobCompletion(ctx, jobExecution)
}

var _ port.JobExecutionListener = (*NotificationListener)(nil)
