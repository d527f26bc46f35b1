package extractor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/cwygoda/clipper/internal/domain"
)

// progressInterval is how often yt-dlp progress is forwarded to the job.
const progressInterval = 500 * time.Millisecond

var errNoInfo = errors.New("yt-dlp returned no metadata")

// finalPathTemplate makes yt-dlp print the path of the file it kept, after
// merging and post-processing.
const finalPathTemplate = "after_move:filepath"

// YtDlp runs the yt-dlp binary through go-ytdlp.
type YtDlp struct {
	cookiesFile string
	executable  string
}

// NewYtDlp creates an extractor. cookiesFile may be empty.
func NewYtDlp(cookiesFile string) *YtDlp {
	return &YtDlp{cookiesFile: cookiesFile}
}

// Download runs one extraction into the job workdir and returns the path
// yt-dlp reported for the finished file, or "" when it reported none.
func (y *YtDlp) Download(ctx context.Context, req domain.DownloadRequest, progress func(domain.ProgressEvent)) (string, error) {
	cmd := y.downloadCommand(req)

	tracker := newSpeedTracker(time.Now)
	cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("progress callback panic: %v", r)
			}
		}()
		progress(tracker.event(update))
	})

	result, err := cmd.Run(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w", err)
	}
	return reportedPath(result), nil
}

func (y *YtDlp) downloadCommand(req domain.DownloadRequest) *ytdlp.Command {
	cmd := y.command().
		Format(req.Format.Selector).
		Output(req.OutputTemplate).
		Print(finalPathTemplate)

	if req.Retries > 0 {
		cmd = cmd.Retries(strconv.Itoa(req.Retries))
	}
	if req.MediaToolPath != "" {
		cmd = cmd.FFmpegLocation(req.MediaToolPath)
		if req.Format.MergeOutputFormat != "" {
			cmd = cmd.MergeOutputFormat(req.Format.MergeOutputFormat)
		}
		if req.Format.ExtractAudio {
			cmd = cmd.ExtractAudio().AudioFormat(req.Format.AudioCodec)
			if req.Format.AudioQuality != "" {
				cmd = cmd.AudioQuality(req.Format.AudioQuality)
			}
		}
	}
	return cmd
}

// Probe fetches metadata for url without downloading it.
func (y *YtDlp) Probe(ctx context.Context, url string) (*domain.MediaInfo, error) {
	result, err := y.probeCommand().Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe: %w", err)
	}
	infos, err := result.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, errNoInfo
	}
	return toMediaInfo(infos[0]), nil
}

func (y *YtDlp) probeCommand() *ytdlp.Command {
	return y.command().
		SkipDownload().
		DumpJSON()
}

// command returns the options shared by every invocation.
func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoPlaylist().
		NoWarnings()
	if y.executable != "" {
		cmd = cmd.SetExecutable(y.executable)
	}
	if y.cookiesFile != "" {
		cmd = cmd.Cookies(y.cookiesFile)
	}
	return cmd
}

// reportedPath returns the last line yt-dlp printed to stdout. Progress lines
// are consumed by go-ytdlp and never reach Result.Stdout.
func reportedPath(result *ytdlp.Result) string {
	if result == nil {
		return ""
	}
	out := strings.TrimSpace(result.Stdout)
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	return strings.TrimSpace(out)
}

func toMediaInfo(info *ytdlp.ExtractedInfo) *domain.MediaInfo {
	mi := &domain.MediaInfo{
		Title:     deref(info.Title),
		Thumbnail: deref(info.Thumbnail),
		Channel:   deref(info.Uploader),
	}
	if mi.Channel == "" {
		mi.Channel = deref(info.Channel)
	}
	if info.Duration != nil && *info.Duration > 0 {
		mi.Duration = int64(*info.Duration)
	}
	return mi
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
