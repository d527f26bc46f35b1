// Package mediatool locates the ffmpeg binary used for merging and audio conversion.
package mediatool

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	binaryName   = "ffmpeg"
	fallbackPath = "/usr/bin/ffmpeg"
	probeTimeout = 5 * time.Second
)

// MediaTool is the detected ffmpeg installation. A zero value means none.
type MediaTool struct {
	Path    string
	Version string
}

// Available reports whether a usable binary was found.
func (m MediaTool) Available() bool {
	return m.Path != ""
}

// Detect finds ffmpeg. A configured path wins; otherwise PATH is searched,
// then the fallback location. The candidate must answer -version.
func Detect(ctx context.Context, configured string) MediaTool {
	for _, candidate := range candidates(configured) {
		version, err := probe(ctx, candidate)
		if err != nil {
			log.Printf("mediatool: %s unusable: %v", candidate, err)
			continue
		}
		return MediaTool{Path: candidate, Version: version}
	}
	return MediaTool{}
}

func candidates(configured string) []string {
	if configured != "" {
		return []string{configured}
	}
	var paths []string
	if p, err := exec.LookPath(binaryName); err == nil {
		paths = append(paths, p)
	}
	if _, err := os.Stat(fallbackPath); err == nil && (len(paths) == 0 || paths[0] != fallbackPath) {
		paths = append(paths, fallbackPath)
	}
	return paths
}

// probe runs "<path> -version" and returns the first output line.
func probe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s -version failed: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	sc := bufio.NewScanner(bytes.NewReader(output))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", nil
}
