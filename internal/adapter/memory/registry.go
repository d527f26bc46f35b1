package memory

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwygoda/clipper/internal/domain"
)

const workDirPattern = "job-*"

// Registry implements domain.JobRegistry as an in-process map.
// Every job gets its own directory under root.
type Registry struct {
	root string
	now  func() time.Time

	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// New creates a registry rooted at root, creating the directory if needed.
func New(root string) (*Registry, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	return &Registry{
		root: root,
		now:  time.Now,
		jobs: make(map[string]*domain.Job),
	}, nil
}

// Root returns the work root.
func (r *Registry) Root() string {
	return r.root
}

// Create allocates a job with a fresh id and an empty workdir.
func (r *Registry) Create(req domain.StartRequest) (*domain.Job, error) {
	dir, err := os.MkdirTemp(r.root, workDirPattern)
	if err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	job := domain.NewJob(uuid.NewString(), dir, req, r.now())

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return job, nil
}

// Get returns the job or domain.ErrJobNotFound.
func (r *Registry) Get(id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

// Remove deletes the job from the map and returns it.
// The workdir is left for the caller.
func (r *Registry) Remove(id string) (*domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	return job, ok
}

// List returns a copy of the current jobs, safe to iterate without the lock.
func (r *Registry) List() []*domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Len returns the number of live jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// PurgeOrphans removes job directories under root that no live job owns,
// typically left behind by a previous process.
func (r *Registry) PurgeOrphans() (int, error) {
	matches, err := filepath.Glob(filepath.Join(r.root, workDirPattern))
	if err != nil {
		return 0, err
	}

	owned := make(map[string]struct{})
	for _, job := range r.List() {
		owned[job.WorkDir] = struct{}{}
	}

	removed := 0
	for _, dir := range matches {
		if _, ok := owned[dir]; ok {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("purge %s: %v", dir, err)
			continue
		}
		removed++
	}
	return removed, nil
}
