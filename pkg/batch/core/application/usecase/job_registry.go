package usecase

import (
	"sort"

	"go.uber.org/fx"

	port "github.com/tigerroll/taxiemissions/pkg/batch/core/application/port"
	exception "github.com/tigerroll/taxiemissions/pkg/batch/support/util/exception"
)

// JobRegistryParams collects every job contributed to the "jobs" group.
type JobRegistryParams struct {
	fx.In
	Jobs []port.Job `group:"jobs"`
}

// JobRegistry resolves jobs by name.
type JobRegistry struct {
	jobs map[string]port.Job
}

func NewJobRegistry(p JobRegistryParams) (*JobRegistry, error) {
	r := &JobRegistry{jobs: make(map[string]port.Job, len(p.Jobs))}
	for _, j := range p.Jobs {
		if _, dup := r.jobs[j.JobName()]; dup {
			return nil, exception.NewBatchErrorf("job_registry", "Job '%s' is registered more than once", j.JobName())
		}
		r.jobs[j.JobName()] = j
	}
	return r, nil
}

// Job returns the job registered under name.
func (r *JobRegistry) Job(name string) (port.Job, error) {
	j, ok := r.jobs[name]
	if !ok {
		return nil, exception.NewBatchErrorf("job_registry", "Job '%s' is not registered (known: %v)", name, r.Names())
	}
	return j, nil
}

func (r *JobRegistry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
