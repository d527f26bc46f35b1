// Package cleanup reclaims expired jobs and their temporary files.
package cleanup

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cwygoda/clipper/internal/domain"
)

// Reasons recorded in the archive.
const (
	ReasonExpired    = "expired"
	ReasonDownloaded = "downloaded"
	ReasonStale      = "stale"
)

// staleFactor multiplies JobTTL for jobs that never left the queue.
const staleFactor = 6

// msgStale is the error left on a queued job reclaimed before it started.
const msgStale = "expired before start"

// Policy decides when a job may be reclaimed.
type Policy struct {
	JobTTL        time.Duration
	DownloadGrace time.Duration
}

// Expired reports whether snap should be reclaimed at now, and why.
// Downloading jobs are never expired.
func (p Policy) Expired(snap domain.Snapshot, now time.Time) (bool, string) {
	age := now.Sub(snap.CreatedAt)
	switch snap.Status {
	case domain.StatusFinished, domain.StatusError:
		if age > p.JobTTL {
			return true, ReasonExpired
		}
	case domain.StatusDownloaded:
		if !snap.DownloadedAt.IsZero() && now.Sub(snap.DownloadedAt) > p.DownloadGrace {
			return true, ReasonDownloaded
		}
	case domain.StatusQueued:
		if age > staleFactor*p.JobTTL {
			return true, ReasonStale
		}
	}
	return false, ""
}

// Sweeper periodically removes expired jobs from the registry.
type Sweeper struct {
	registry domain.JobRegistry
	archive  domain.JobArchive
	policy   Policy
	interval time.Duration
	now      func() time.Time
}

// New creates a sweeper. archive may be nil.
func New(registry domain.JobRegistry, archive domain.JobArchive, policy Policy, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		archive:  archive,
		policy:   policy,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("sweeper started, every %s (ttl %s, grace %s)", s.interval, s.policy.JobTTL, s.policy.DownloadGrace)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper shutting down")
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				log.Printf("sweeper: reclaimed %d job(s)", n)
			}
		}
	}
}

// Sweep runs one cycle and returns the number of jobs reclaimed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()
	removed := 0
	for _, job := range s.registry.List() {
		if s.sweepJob(ctx, job, now) {
			removed++
		}
	}
	return removed
}

func (s *Sweeper) sweepJob(ctx context.Context, job *domain.Job, now time.Time) (removed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("job %s: sweep panic: %v", job.ID, r)
			removed = false
		}
	}()

	snap := job.Snapshot()
	expired, reason := s.policy.Expired(snap, now)
	if !expired {
		return false
	}
	// A queued job may still be waiting for a pool slot; fail it first so
	// the worker refuses to start it.
	if snap.Status == domain.StatusQueued {
		if !job.Withdraw(msgStale, now) {
			return false
		}
		snap = job.Snapshot()
	}
	if _, ok := s.registry.Remove(job.ID); !ok {
		return false
	}

	var size int64
	if snap.File != "" {
		if info, err := os.Stat(snap.File); err == nil {
			size = info.Size()
		}
	}
	if snap.WorkDir != "" {
		if err := os.RemoveAll(snap.WorkDir); err != nil {
			log.Printf("job %s: remove %s: %v", job.ID, snap.WorkDir, err)
		}
	}
	log.Printf("job %s: reclaimed (%s, %s, freed %s)", job.ID, snap.Status, reason, humanize.Bytes(uint64(size)))

	if s.archive != nil {
		rec := domain.ArchivedJob{
			ID:           snap.ID,
			URL:          snap.URL,
			Format:       snap.Format,
			Status:       snap.Status,
			Error:        snap.Error,
			FileSize:     size,
			Reason:       reason,
			CreatedAt:    snap.CreatedAt,
			FinishedAt:   snap.FinishedAt,
			DownloadedAt: snap.DownloadedAt,
			ArchivedAt:   now,
		}
		if snap.File != "" {
			rec.FileName = filepath.Base(snap.File)
		}
		if err := s.archive.Archive(ctx, rec); err != nil {
			log.Printf("job %s: archive: %v", job.ID, err)
		}
	}
	return true
}
