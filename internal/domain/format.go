package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatSpec tells the extractor which streams to select and how to post-process them.
type FormatSpec struct {
	Selector          string
	MergeOutputFormat string
	ExtractAudio      bool
	AudioCodec        string
	AudioQuality      string
}

const (
	FormatVideo    = "video"
	FormatAudio    = "audio"
	FormatMP4_720  = "mp4_720"
	FormatMP4_1080 = "mp4_1080"
	FormatMP4Best  = "mp4_best"
	FormatAudioMP3 = "audio_mp3"

	// DefaultAudioBitrate is the mp3 bitrate in kbps when none is requested.
	DefaultAudioBitrate = 192

	bestVideoSelector  = "bestvideo[vcodec!=none]+bestaudio/best"
	bestAudioSelector  = "bestaudio/best"
	singleFileSelector = "best[ext=mp4]/best"
	defaultMergeFormat = "mp4"
	defaultAudioCodec  = "mp3"
)

var presetOrder = []string{FormatVideo, FormatAudio, FormatMP4_720, FormatMP4_1080, FormatMP4Best, FormatAudioMP3}

// AvailableFormats lists the format keys usable in the current environment.
// Without a media tool nothing can be merged or converted, so only
// single-file selections are offered.
func AvailableFormats(hasMediaTool bool) []string {
	if !hasMediaTool {
		return []string{FormatVideo, FormatAudio, FormatMP4Best}
	}
	return append([]string(nil), presetOrder...)
}

// ResolveFormat maps a start request onto an extractor format spec.
// An empty format choice means "video".
func ResolveFormat(req StartRequest, hasMediaTool bool) (FormatSpec, error) {
	key := strings.ToLower(strings.TrimSpace(req.FormatChoice))
	if key == "" {
		key = FormatVideo
	}

	audio := false
	switch key {
	case FormatVideo, FormatMP4_720, FormatMP4_1080, FormatMP4Best:
	case FormatAudio, FormatAudioMP3:
		audio = true
	default:
		return FormatSpec{}, fmt.Errorf("%w %q", ErrUnknownFormat, req.FormatChoice)
	}

	if !hasMediaTool {
		if audio {
			return FormatSpec{Selector: bestAudioSelector}, nil
		}
		return FormatSpec{Selector: singleFileSelector}, nil
	}

	if audio {
		bitrate := req.AudioBitrate
		if bitrate <= 0 {
			bitrate = DefaultAudioBitrate
		}
		return FormatSpec{
			Selector:     bestAudioSelector,
			ExtractAudio: true,
			AudioCodec:   defaultAudioCodec,
			AudioQuality: strconv.Itoa(bitrate) + "K",
		}, nil
	}

	var selector string
	switch key {
	case FormatMP4_720:
		selector = "bestvideo[height<=720]+bestaudio/best"
	case FormatMP4_1080:
		selector = "bestvideo[height<=1080]+bestaudio/best"
	case FormatMP4Best:
		selector = "bestvideo+bestaudio/best"
	default:
		selector = videoSelector(req.VideoRes)
	}
	return FormatSpec{Selector: selector, MergeOutputFormat: defaultMergeFormat}, nil
}

// videoSelector caps the video height at res, preferring mp4 streams up to 1080p.
func videoSelector(res int) string {
	if res <= 0 {
		return bestVideoSelector
	}
	var parts []string
	if res <= 1080 {
		parts = append(parts, fmt.Sprintf("bestvideo[height<=%d][vcodec!=none][ext=mp4]+bestaudio/best[height<=%d]", res, res))
	}
	parts = append(parts,
		fmt.Sprintf("bestvideo[height<=%d][vcodec!=none]+bestaudio", res),
		"bestvideo+bestaudio/best",
	)
	return strings.Join(parts, "/")
}
