package worker

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	defaultBase   = "%(title)s"
	defaultPrefix = "Clipper"
	maxBaseRunes  = 240
)

var (
	forbiddenChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	templateToken  = regexp.MustCompile(`%\([A-Za-z0-9_.]+\)s`)
)

// outputTemplate builds "<dir>/<prefix>__<base>.%(ext)s" for the extractor.
func outputTemplate(dir, prefix, hint string) string {
	prefix = cleanLiteral(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = defaultPrefix
	}
	return filepath.Join(dir, escapePercent(prefix)+"__"+safeBase(hint)+".%(ext)s")
}

// safeBase cleans a filename hint. Plain field tokens like %(title)s are
// kept; everything else is literal text, with forbidden characters turned
// into underscores and any other % escaped.
func safeBase(hint string) string {
	base := strings.TrimRight(strings.TrimSpace(hint), ".")

	var b strings.Builder
	budget := maxBaseRunes
	literal := func(s string) {
		s = cleanLiteral(s)
		if r := []rune(s); len(r) > budget {
			s = string(r[:budget])
		}
		budget -= utf8.RuneCountInString(s)
		b.WriteString(escapePercent(s))
	}

	last := 0
	for _, loc := range templateToken.FindAllStringIndex(base, -1) {
		literal(base[last:loc[0]])
		token := base[loc[0]:loc[1]]
		if n := utf8.RuneCountInString(token); n <= budget {
			b.WriteString(token)
			budget -= n
		} else {
			budget = 0
		}
		last = loc[1]
	}
	literal(base[last:])

	out := strings.TrimRight(b.String(), " ")
	if out == "" {
		return defaultBase
	}
	return out
}

func cleanLiteral(s string) string {
	s = forbiddenChars.ReplaceAllString(s, "_")
	return whitespaceRun.ReplaceAllString(s, " ")
}

func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
