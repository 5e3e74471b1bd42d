package translation

import (
	"strings"

	"github.com/upb/lingotube/backend/models"
)

// terminalPunctuation ends a sentence; a segment ending in one never absorbs the next
const terminalPunctuation = ".!?…。！？"

// Group is one translation unit covering consecutive source segments
type Group struct {
	Segments []models.SubtitleSegment
	Start    float64
	End      float64
}

// Text joins the segment texts with single spaces
func (g Group) Text() string {
	texts := make([]string, len(g.Segments))
	for i, s := range g.Segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}

// GroupSegments merges adjacent segments when the gap to the previous one is
// at most maxGap seconds and the previous one does not end a sentence.
// A non-positive maxGap keeps every segment in its own group.
func GroupSegments(segments []models.SubtitleSegment, maxGap float64) []Group {
	if len(segments) == 0 {
		return nil
	}

	groups := make([]Group, 0, len(segments))
	current := newGroup(segments[0])

	for _, seg := range segments[1:] {
		prev := current.Segments[len(current.Segments)-1]
		gap := seg.Start - current.End

		if maxGap > 0 && gap <= maxGap && !endsSentence(prev.Text) {
			current.Segments = append(current.Segments, seg)
			current.End = seg.End()
			continue
		}
		groups = append(groups, current)
		current = newGroup(seg)
	}
	return append(groups, current)
}

func newGroup(seg models.SubtitleSegment) Group {
	return Group{
		Segments: []models.SubtitleSegment{seg},
		Start:    seg.Start,
		End:      seg.End(),
	}
}

func endsSentence(text string) bool {
	t := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), MusicNote+" "))
	if t == "" {
		return false
	}
	r := []rune(t)
	return strings.ContainsRune(terminalPunctuation, r[len(r)-1])
}

// SegmentsBefore counts the source segments covered by groups [0, n)
func SegmentsBefore(groups []Group, n int) int {
	count := 0
	for i := 0; i < n && i < len(groups); i++ {
		count += len(groups[i].Segments)
	}
	return count
}
