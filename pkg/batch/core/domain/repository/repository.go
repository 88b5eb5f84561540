// Package repository declares how batch execution metadata is persisted.
package repository

// JobRepository persists job and step executions.
type JobRepository interface {
	JobExecution
	StepExecution

	// Close releases resources held by the repository itself. Pooled connections are
	// owned by their providers and are not closed here.
	Close() error
}
