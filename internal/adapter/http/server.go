package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/cwygoda/clipper/internal/domain"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Config holds the HTTP adapter settings.
type Config struct {
	Addr          string
	MediaToolPath string
	StartRate     float64
	StartBurst    int
}

// Server is the HTTP adapter for the job service.
type Server struct {
	svc     *domain.JobService
	archive domain.JobArchive
	cfg     Config
	limiter *rate.Limiter
	router  chi.Router
	server  *http.Server
}

// NewServer creates a new HTTP server. archive may be nil.
func NewServer(svc *domain.JobService, archive domain.JobArchive, cfg Config) *Server {
	limit := rate.Inf
	if cfg.StartRate > 0 {
		limit = rate.Limit(cfg.StartRate)
	}
	s := &Server{
		svc:     svc,
		archive: archive,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, max(cfg.StartBurst, 1)),
		router:  chi.NewRouter(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/start", s.handleStart)
	s.router.Post("/info", s.handleInfo)
	s.router.Get("/progress/{id}", s.handleProgress)
	s.router.Get("/fetch/{id}", s.handleFetch)
	s.router.Get("/env", s.handleEnv)
	s.router.Get("/jobs", s.handleJobs)
	s.router.Get("/history", s.handleHistory)
	s.router.Get("/health", s.handleHealth)
}

// startRequest is the request body for POST /start.
type startRequest struct {
	URL          string  `json:"url"`
	FormatChoice string  `json:"format_choice"`
	Filename     string  `json:"filename"`
	VideoRes     flexInt `json:"video_res"`
	AudioBitrate flexInt `json:"audio_bitrate"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

type infoRequest struct {
	URL string `json:"url"`
}

type infoResponse struct {
	Title       string `json:"title"`
	Thumbnail   string `json:"thumbnail"`
	Channel     string `json:"channel"`
	Duration    int64  `json:"duration"`
	DurationStr string `json:"duration_str"`
}

// progressResponse is the JSON payload for a job's progress.
type progressResponse struct {
	JobID           string  `json:"job_id"`
	Percent         int     `json:"percent"`
	Status          string  `json:"status"`
	Error           *string `json:"error"`
	SpeedBytes      float64 `json:"speed_bytes"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	ETASeconds      *int64  `json:"eta_seconds"`
}

type envResponse struct {
	FFmpegAvailable bool     `json:"ffmpeg_available"`
	FFmpeg          string   `json:"ffmpeg"`
	Prefix          string   `json:"prefix"`
	Formats         []string `json:"formats"`
}

type historyResponse struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileSize     int64  `json:"file_size"`
	Reason       string `json:"reason"`
	CreatedAt    string `json:"created_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
	DownloadedAt string `json:"downloaded_at,omitempty"`
	ArchivedAt   string `json:"archived_at"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.svc.Start(r.Context(), domain.StartRequest{
		URL:          req.URL,
		FormatChoice: req.FormatChoice,
		Filename:     req.Filename,
		VideoRes:     int(req.VideoRes),
		AudioBitrate: int(req.AudioBitrate),
	})
	if err != nil {
		log.Printf("start error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, startResponse{JobID: job.ID})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Preview failed", Detail: "invalid JSON"})
		return
	}

	info, err := s.svc.Probe(r.Context(), req.URL)
	if err != nil {
		log.Printf("preview %s: %v", req.URL, err)
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Preview failed", Detail: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, infoResponse{
		Title:       info.Title,
		Thumbnail:   info.Thumbnail,
		Channel:     info.Channel,
		Duration:    info.Duration,
		DurationStr: formatDuration(info.Duration),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		log.Printf("progress error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, snapshotToResponse(snap))
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	f, err := s.svc.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			s.writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, domain.ErrNotReady):
			s.writeError(w, http.StatusBadRequest, "File not ready")
		default:
			log.Printf("fetch error: %v", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	defer f.Close()

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	name := filepath.Base(f.Name())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, modTime, f)
}

func (s *Server) handleEnv(w http.ResponseWriter, r *http.Request) {
	caps := s.svc.Capabilities()
	s.writeJSON(w, http.StatusOK, envResponse{
		FFmpegAvailable: caps.MediaTool,
		FFmpeg:          s.cfg.MediaToolPath,
		Prefix:          caps.Prefix,
		Formats:         caps.Formats,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	snaps := s.svc.Jobs(r.Context())
	resp := make([]progressResponse, 0, len(snaps))
	for _, snap := range snaps {
		resp = append(resp, snapshotToResponse(snap))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	resp := []historyResponse{}
	if s.archive != nil {
		recs, err := s.archive.Recent(r.Context(), limit)
		if err != nil {
			log.Printf("history error: %v", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		for _, rec := range recs {
			resp = append(resp, archivedToResponse(rec))
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func snapshotToResponse(snap domain.Snapshot) progressResponse {
	resp := progressResponse{
		JobID:           snap.ID,
		Percent:         snap.Percent,
		Status:          string(snap.Status),
		SpeedBytes:      snap.SpeedBytes,
		DownloadedBytes: snap.DownloadedBytes,
		TotalBytes:      snap.TotalBytes,
		ETASeconds:      snap.ETASeconds,
	}
	if snap.Error != "" {
		msg := snap.Error
		resp.Error = &msg
	}
	return resp
}

func archivedToResponse(rec domain.ArchivedJob) historyResponse {
	return historyResponse{
		ID:           rec.ID,
		URL:          rec.URL,
		Format:       rec.Format,
		Status:       string(rec.Status),
		Error:        rec.Error,
		FileName:     rec.FileName,
		FileSize:     rec.FileSize,
		Reason:       rec.Reason,
		CreatedAt:    formatTime(rec.CreatedAt),
		FinishedAt:   formatTime(rec.FinishedAt),
		DownloadedAt: formatTime(rec.DownloadedAt),
		ArchivedAt:   formatTime(rec.ArchivedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// formatDuration renders seconds as m:ss.
func formatDuration(secs int64) string {
	secs = max(secs, 0)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
