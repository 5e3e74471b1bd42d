package translation

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/upb/lingotube/backend/models"
)

// AutoDetect asks for the source language to be detected from the segments
const AutoDetect = "auto"

// DetectSourceLanguage votes over the segments and returns the most common
// ISO 639-1 code. It returns AutoDetect when nothing reliable was found.
func DetectSourceLanguage(segments []models.SubtitleSegment) string {
	votes := make(map[string]int)
	for _, seg := range segments {
		text := strings.TrimSpace(strings.ReplaceAll(seg.Text, MusicNote, ""))
		if len([]rune(text)) < 8 {
			continue
		}
		info := whatlanggo.Detect(text)
		code := info.Lang.Iso6391()
		if code == "" {
			continue
		}
		votes[code]++
	}

	best, bestCount := AutoDetect, 0
	for code, count := range votes {
		if count > bestCount || (count == bestCount && code < best) {
			best, bestCount = code, count
		}
	}
	return best
}

// ResolveSourceLanguage keeps an explicit language and detects "auto" or empty
func ResolveSourceLanguage(source string, segments []models.SubtitleSegment) string {
	if source != "" && source != AutoDetect {
		return source
	}
	return DetectSourceLanguage(segments)
}
