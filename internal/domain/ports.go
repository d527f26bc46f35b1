package domain

import (
	"context"
	"time"
)

// ProgressKind tags an extractor progress event.
type ProgressKind string

const (
	ProgressDownloading ProgressKind = "downloading"
	ProgressFinished    ProgressKind = "finished"
	ProgressOther       ProgressKind = "other"
)

// ProgressEvent is one progress report from the extractor.
// Zero counters mean the extractor did not know the value.
type ProgressEvent struct {
	Kind            ProgressKind
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBytes      float64
}

// DownloadRequest is everything the extractor needs for one job.
type DownloadRequest struct {
	URL            string
	OutputTemplate string
	Format         FormatSpec
	MediaToolPath  string
	Retries        int
}

// MediaInfo is descriptive metadata for a UI preview.
type MediaInfo struct {
	Title     string
	Thumbnail string
	Channel   string
	Duration  int64
}

// Extractor is the driven port for the external media extractor.
type Extractor interface {
	// Download fetches req.URL into the location described by req.OutputTemplate,
	// calling progress as the transfer advances. It returns the final file path
	// when the extractor reports one, or "" when it does not.
	Download(ctx context.Context, req DownloadRequest, progress func(ProgressEvent)) (string, error)
	Probe(ctx context.Context, url string) (*MediaInfo, error)
}

// JobRegistry is the driven port for the live job map.
type JobRegistry interface {
	Create(req StartRequest) (*Job, error)
	Get(id string) (*Job, error)
	Remove(id string) (*Job, bool)
	List() []*Job
}

// Dispatcher runs jobs in the background.
type Dispatcher interface {
	Dispatch(job *Job)
}

// ArchivedJob is the durable record of a reclaimed job.
type ArchivedJob struct {
	ID           string
	URL          string
	Format       string
	Status       JobStatus
	Error        string
	FileName     string
	FileSize     int64
	Reason       string
	CreatedAt    time.Time
	FinishedAt   time.Time
	DownloadedAt time.Time
	ArchivedAt   time.Time
}

// JobArchive is the driven port for reclaimed job history.
type JobArchive interface {
	Archive(ctx context.Context, rec ArchivedJob) error
	Recent(ctx context.Context, limit int) ([]ArchivedJob, error)
}
