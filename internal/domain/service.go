package domain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"
)

var (
	ErrInvalidURL        = errors.New("invalid URL")
	ErrJobNotFound       = errors.New("job not found")
	ErrNotReady          = errors.New("file not ready")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownFormat     = errors.New("unsupported format")
)

var urlPattern = regexp.MustCompile(`(?i)^https?://`)

// ValidURL reports whether raw looks like an http(s) URL.
func ValidURL(raw string) bool {
	if !urlPattern.MatchString(raw) {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

// Capabilities describes what the running environment can produce.
type Capabilities struct {
	MediaTool bool
	Prefix    string
	Formats   []string
}

// JobService orchestrates job operations.
type JobService struct {
	registry   JobRegistry
	dispatcher Dispatcher
	extractor  Extractor
	caps       Capabilities
	now        func() time.Time
}

// NewJobService creates a new JobService.
func NewJobService(registry JobRegistry, dispatcher Dispatcher, extractor Extractor, hasMediaTool bool, prefix string) *JobService {
	return &JobService{
		registry:   registry,
		dispatcher: dispatcher,
		extractor:  extractor,
		caps: Capabilities{
			MediaTool: hasMediaTool,
			Prefix:    prefix,
			Formats:   AvailableFormats(hasMediaTool),
		},
		now: time.Now,
	}
}

// Start creates a job and hands it to the dispatcher without waiting.
// URL validation happens in the worker so that a bad URL still yields a job.
func (s *JobService) Start(ctx context.Context, req StartRequest) (*Job, error) {
	job, err := s.registry.Create(req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.dispatcher.Dispatch(job)
	return job, nil
}

// Progress returns a snapshot of the job.
func (s *JobService) Progress(ctx context.Context, id string) (Snapshot, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// Jobs returns snapshots of every live job.
func (s *JobService) Jobs(ctx context.Context) []Snapshot {
	jobs := s.registry.List()
	snaps := make([]Snapshot, 0, len(jobs))
	for _, job := range jobs {
		snaps = append(snaps, job.Snapshot())
	}
	return snaps
}

// Fetch opens the artifact and marks the job downloaded. The caller closes
// the returned file. A job that is not finished, or whose file cannot be
// opened, is left untouched.
func (s *JobService) Fetch(ctx context.Context, id string) (*os.File, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}

	snap := job.Snapshot()
	if snap.Status != StatusFinished && snap.Status != StatusDownloaded {
		return nil, ErrNotReady
	}
	if snap.File == "" {
		return nil, ErrNotReady
	}
	f, err := os.Open(snap.File)
	if err != nil {
		return nil, ErrNotReady
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotReady
	}

	if err := job.MarkDownloaded(s.now()); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return f, nil
}

// Probe fetches preview metadata without creating a job.
func (s *JobService) Probe(ctx context.Context, rawURL string) (*MediaInfo, error) {
	if !ValidURL(rawURL) {
		return nil, ErrInvalidURL
	}
	return s.extractor.Probe(ctx, rawURL)
}

// Capabilities reports the media tool availability and offered formats.
func (s *JobService) Capabilities() Capabilities {
	caps := s.caps
	caps.Formats = append([]string(nil), s.caps.Formats...)
	return caps
}
