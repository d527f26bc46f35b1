package extractor

import (
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/cwygoda/clipper/internal/domain"
)

// speedTracker turns go-ytdlp progress updates into domain events.
// yt-dlp's progress payload carries no rate, so the rate is derived from
// consecutive samples of the same file.
type speedTracker struct {
	now func() time.Time

	mu       sync.Mutex
	filename string
	lastAt   time.Time
	lastSize int64
}

func newSpeedTracker(now func() time.Time) *speedTracker {
	return &speedTracker{now: now}
}

func (t *speedTracker) event(u ytdlp.ProgressUpdate) domain.ProgressEvent {
	switch u.Status {
	case ytdlp.ProgressStatusDownloading:
	case ytdlp.ProgressStatusFinished:
		return domain.ProgressEvent{Kind: domain.ProgressFinished}
	default:
		return domain.ProgressEvent{Kind: domain.ProgressOther}
	}

	downloaded := max(int64(u.DownloadedBytes), 0)
	total := max(int64(u.TotalBytes), 0)
	return domain.ProgressEvent{
		Kind:            domain.ProgressDownloading,
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		SpeedBytes:      t.sample(u.Filename, downloaded, u.Started),
	}
}

// sample records downloaded bytes for filename and returns the rate since
// the previous sample, or the average since started on the first one.
func (t *speedTracker) sample(filename string, downloaded int64, started time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	fresh := filename != t.filename || downloaded < t.lastSize || t.lastAt.IsZero()

	var speed float64
	if fresh {
		if !started.IsZero() {
			if elapsed := now.Sub(started).Seconds(); elapsed > 0 {
				speed = float64(downloaded) / elapsed
			}
		}
	} else if elapsed := now.Sub(t.lastAt).Seconds(); elapsed > 0 {
		speed = float64(downloaded-t.lastSize) / elapsed
	}

	t.filename = filename
	t.lastAt = now
	t.lastSize = downloaded
	return max(speed, 0)
}
