package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cwygoda/clipper/internal/domain"
)

// Processor runs a single job to completion.
type Processor interface {
	Process(ctx context.Context, job *domain.Job)
}

// Pool implements domain.Dispatcher with a fixed number of slots.
// Jobs waiting for a slot stay queued.
type Pool struct {
	ctx   context.Context
	proc  Processor
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool creates a pool running at most size jobs at once. Cancelling ctx
// stops in-flight extractions and fails jobs still waiting for a slot.
func NewPool(ctx context.Context, proc Processor, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		ctx:   ctx,
		proc:  proc,
		slots: make(chan struct{}, size),
	}
}

// Dispatch schedules job and returns immediately.
func (p *Pool) Dispatch(job *domain.Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.slots <- struct{}{}:
		case <-p.ctx.Done():
			log.Printf("job %s: cancelled before start", job.ID)
			cancel(job)
			return
		}
		defer func() { <-p.slots }()

		if p.ctx.Err() != nil {
			cancel(job)
			return
		}
		p.proc.Process(p.ctx, job)
	}()
}

// Wait blocks until every dispatched job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Running returns the number of occupied slots.
func (p *Pool) Running() int {
	return len(p.slots)
}

func cancel(job *domain.Job) {
	if err := job.Fail(msgCancelled, time.Now()); err != nil {
		log.Printf("job %s: fail: %v", job.ID, err)
	}
}
