package cron

import (
	"context"
	"fmt"
	"sync"
)

// Job is one unit of work run every cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is the ordered set of jobs a Service runs. Names are unique.
type Registry struct {
	mu   sync.RWMutex
	jobs []Job
	seen map[string]struct{}
}

// NewRegistry preloads jobs, skipping nils and repeated names.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{seen: map[string]struct{}{}}
	for _, job := range jobs {
		_ = registry.Register(job)
	}
	return registry
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[job.Name()]; dup {
		return fmt.Errorf("job %q already registered", job.Name())
	}
	r.seen[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Job(nil), r.jobs...)
}
