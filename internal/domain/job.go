package domain

import (
	"sync"
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusDownloading JobStatus = "downloading"
	StatusFinished    JobStatus = "finished"
	StatusDownloaded  JobStatus = "downloaded"
	StatusError       JobStatus = "error"
)

var transitions = map[JobStatus][]JobStatus{
	StatusQueued:      {StatusDownloading, StatusError},
	StatusDownloading: {StatusFinished, StatusError},
	StatusFinished:    {StatusDownloaded},
	StatusDownloaded:  {StatusDownloaded},
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the extractor will no longer touch the job.
func (s JobStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusDownloaded || s == StatusError
}

// StartRequest is what a client submits to start a job.
type StartRequest struct {
	URL          string
	FormatChoice string
	Filename     string
	VideoRes     int
	AudioBitrate int
}

// Job is one extraction request and its tracked state.
// Identity fields are immutable; progress fields are guarded by mu.
type Job struct {
	ID        string
	WorkDir   string
	Request   StartRequest
	CreatedAt time.Time

	mu              sync.RWMutex
	status          JobStatus
	percent         int
	downloadedBytes int64
	totalBytes      int64
	speedBytes      float64
	err             string
	file            string
	finishedAt      time.Time
	downloadedAt    time.Time
}

// NewJob creates a queued job.
func NewJob(id, workDir string, req StartRequest, now time.Time) *Job {
	return &Job{
		ID:        id,
		WorkDir:   workDir,
		Request:   req,
		CreatedAt: now,
		status:    StatusQueued,
	}
}

// Snapshot is a consistent, read-only copy of a job.
type Snapshot struct {
	ID              string
	URL             string
	Format          string
	Status          JobStatus
	Percent         int
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBytes      float64
	ETASeconds      *int64
	Error           string
	File            string
	WorkDir         string
	CreatedAt       time.Time
	FinishedAt      time.Time
	DownloadedAt    time.Time
}

// Snapshot copies the job state under its read lock.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := Snapshot{
		ID:              j.ID,
		URL:             j.Request.URL,
		Format:          j.Request.FormatChoice,
		Status:          j.status,
		Percent:         j.percent,
		DownloadedBytes: j.downloadedBytes,
		TotalBytes:      j.totalBytes,
		SpeedBytes:      j.speedBytes,
		Error:           j.err,
		File:            j.file,
		WorkDir:         j.WorkDir,
		CreatedAt:       j.CreatedAt,
		FinishedAt:      j.finishedAt,
		DownloadedAt:    j.downloadedAt,
	}
	if eta, ok := EstimateETA(j.totalBytes, j.downloadedBytes, j.speedBytes); ok {
		snap.ETASeconds = &eta
	}
	return snap
}

// Status returns the current status.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) transition(next JobStatus) error {
	if !j.status.CanTransition(next) {
		return &TransitionError{From: j.status, To: next}
	}
	j.status = next
	return nil
}

// Begin moves a queued job to downloading.
func (j *Job) Begin() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transition(StatusDownloading)
}

// ApplyProgress folds one extractor progress event into the job.
// Events arriving outside the downloading state are dropped.
func (j *Job) ApplyProgress(ev ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusDownloading {
		return
	}

	switch ev.Kind {
	case ProgressDownloading:
		j.downloadedBytes = max(ev.DownloadedBytes, 0)
		j.totalBytes = max(ev.TotalBytes, 0)
		if ev.SpeedBytes > 0 {
			j.speedBytes = ev.SpeedBytes
		} else {
			j.speedBytes = 0
		}
		if j.totalBytes > 0 {
			j.percent = Percent(j.downloadedBytes, j.totalBytes)
		}
	case ProgressFinished:
		j.percent = 100
	}
}

// Finish records the produced artifact.
func (j *Job) Finish(file string, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transition(StatusFinished); err != nil {
		return err
	}
	j.file = file
	j.percent = 100
	j.finishedAt = now
	return nil
}

// Fail moves the job to the error state with msg.
func (j *Job) Fail(msg string, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transition(StatusError); err != nil {
		return err
	}
	j.err = msg
	j.finishedAt = now
	return nil
}

// Withdraw fails the job only if no worker has begun it yet. It reports
// whether the job was withdrawn.
func (j *Job) Withdraw(msg string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusQueued {
		return false
	}
	if err := j.transition(StatusError); err != nil {
		return false
	}
	j.err = msg
	j.finishedAt = now
	return true
}

// MarkDownloaded records that a client fetched the artifact.
func (j *Job) MarkDownloaded(now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transition(StatusDownloaded); err != nil {
		return err
	}
	j.downloadedAt = now
	return nil
}

// Percent returns downloaded*100/total clamped to [0, 100].
// An unknown (non-positive) total yields 0.
func Percent(downloaded, total int64) int {
	if total <= 0 || downloaded <= 0 {
		return 0
	}
	if downloaded >= total {
		return 100
	}
	p := int(downloaded * 100 / total)
	return min(max(p, 0), 100)
}

// EstimateETA returns the remaining seconds at the current speed.
// It is undefined unless all counters are positive and the transfer is incomplete.
func EstimateETA(total, downloaded int64, speed float64) (int64, bool) {
	if total <= 0 || downloaded <= 0 || speed <= 0 || downloaded >= total {
		return 0, false
	}
	return int64(float64(total-downloaded) / speed), true
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From, To JobStatus
}

func (e *TransitionError) Error() string {
	return "invalid transition " + string(e.From) + " -> " + string(e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
