package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cwygoda/clipper/internal/domain"
)

const (
	maxErrorRunes = 400
	msgInvalidURL = "Invalid URL"
	msgNoOutput   = "No output file produced"
	msgCancelled  = "cancelled"
)

var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// Worker runs one job through the extractor.
type Worker struct {
	extractor     domain.Extractor
	mediaToolPath string
	prefix        string
	retries       int
	now           func() time.Time
}

// New creates a worker. An empty mediaToolPath restricts formats to
// what the extractor can produce without ffmpeg.
func New(extractor domain.Extractor, mediaToolPath, prefix string, retries int) *Worker {
	return &Worker{
		extractor:     extractor,
		mediaToolPath: mediaToolPath,
		prefix:        prefix,
		retries:       retries,
		now:           time.Now,
	}
}

// Process drives job from queued to finished or error. It never panics.
func (w *Worker) Process(ctx context.Context, job *domain.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("job %s: panic: %v", job.ID, r)
			w.fail(job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	req := job.Request
	if !domain.ValidURL(req.URL) {
		log.Printf("job %s: invalid URL %q", job.ID, req.URL)
		w.fail(job, msgInvalidURL)
		return
	}

	format, err := domain.ResolveFormat(req, w.mediaToolPath != "")
	if err != nil {
		log.Printf("job %s: %v", job.ID, err)
		w.fail(job, capitalize(err.Error()))
		return
	}

	if err := job.Begin(); err != nil {
		log.Printf("job %s: begin: %v", job.ID, err)
		return
	}
	log.Printf("job %s: downloading %s as %s", job.ID, req.URL, formatKey(req))

	reported, err := w.extractor.Download(ctx, domain.DownloadRequest{
		URL:            req.URL,
		OutputTemplate: outputTemplate(job.WorkDir, w.prefix, req.Filename),
		Format:         format,
		MediaToolPath:  w.mediaToolPath,
		Retries:        w.retries,
	}, job.ApplyProgress)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			msg = msgCancelled
		}
		log.Printf("job %s: extractor error: %v", job.ID, err)
		w.fail(job, truncate(msg, maxErrorRunes))
		return
	}

	file, size, ok := selectArtifact(job.WorkDir, reported)
	if !ok {
		log.Printf("job %s: no output in %s", job.ID, job.WorkDir)
		w.fail(job, msgNoOutput)
		return
	}

	if err := job.Finish(file, w.now()); err != nil {
		log.Printf("job %s: finish: %v", job.ID, err)
		return
	}
	log.Printf("job %s: finished %s (%s)", job.ID, filepath.Base(file), humanize.Bytes(uint64(size)))
}

func (w *Worker) fail(job *domain.Job, msg string) {
	if err := job.Fail(msg, w.now()); err != nil {
		log.Printf("job %s: fail: %v", job.ID, err)
	}
}

// selectArtifact picks the produced file. The extractor's reported path wins
// when it is a regular file inside dir; otherwise the largest complete file.
func selectArtifact(dir, reported string) (string, int64, bool) {
	if reported != "" && within(dir, reported) {
		if info, err := os.Stat(reported); err == nil && info.Mode().IsRegular() {
			return reported, info.Size(), true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, false
	}

	var best string
	var bestSize int64 = -1
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isPartial(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, entry.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestSize, true
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func isPartial(name string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// truncate limits s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatKey(req domain.StartRequest) string {
	if req.FormatChoice == "" {
		return domain.FormatVideo
	}
	return req.FormatChoice
}
