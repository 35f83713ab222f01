package cron

import (
	"context"
	"fmt"
)

// Job is one unit of scheduled maintenance. Name doubles as the metrics label.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order. Names are unique.
type Registry struct {
	jobs  []Job
	index map[string]int
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds job and reports false when it is nil or its name is taken.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	if _, dup := r.index[job.Name()]; dup {
		return false
	}
	r.index[job.Name()] = len(r.jobs)
	r.jobs = append(r.jobs, job)
	return true
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

// Select returns the named jobs in registration order, or every job when
// names is empty. Unknown names are an error.
func (r *Registry) Select(names ...string) ([]Job, error) {
	if len(names) == 0 {
		return r.Jobs(), nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.index[name]; !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		wanted[name] = true
	}
	var out []Job
	for _, job := range r.jobs {
		if wanted[job.Name()] {
			out = append(out, job)
		}
	}
	return out, nil
}
