package translation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MusicNote is the alignment marker YouTube puts around sung captions
const MusicNote = "♪"

var noteRun = regexp.MustCompile(`♪+`)

// noteInfo records where an original segment carries markers
type noteInfo struct {
	hasStart bool
	hasEnd   bool
	length   int
}

// Distribute splits the translation of a grouped unit back across the
// original segment texts, proportionally to their length. Markers found at
// the start or end of an original segment are restored on its part.
func Distribute(originals []string, translated string) []string {
	if len(originals) <= 1 {
		return []string{translated}
	}

	infos := make([]noteInfo, len(originals))
	total := 0
	originalHasNotes := false
	for i, text := range originals {
		trimmed := strings.TrimSpace(text)
		infos[i] = noteInfo{
			hasStart: strings.HasPrefix(trimmed, MusicNote),
			hasEnd:   strings.HasSuffix(trimmed, MusicNote),
			length:   utf8.RuneCountInString(text),
		}
		total += infos[i].length
		if noteRun.MatchString(text) {
			originalHasNotes = true
		}
	}

	weights := make([]float64, len(originals))
	for i, info := range infos {
		if total > 0 {
			weights[i] = float64(info.length) / float64(total)
		} else {
			weights[i] = 1 / float64(len(originals))
		}
	}

	clean := strings.TrimSpace(translated)
	if !noteRun.MatchString(clean) && originalHasNotes {
		return splitWithNotes(clean, weights, infos)
	}

	parts := smartSplit(clean, weights)
	for i := range parts {
		parts[i] = restoreNotes(parts[i], infos[i])
	}
	return parts
}

// restoreNotes adds a start and end marker when the original had them
func restoreNotes(part string, info noteInfo) string {
	if info.hasStart && !strings.HasPrefix(strings.TrimSpace(part), MusicNote) {
		part = MusicNote + " " + strings.TrimSpace(part)
	}
	if info.hasEnd && !strings.HasSuffix(strings.TrimSpace(part), MusicNote) {
		part = strings.TrimSpace(part) + " " + MusicNote
	}
	return part
}

// IsBlankPart reports whether a distributed part holds no words, only markers
func IsBlankPart(part string) bool {
	return strings.TrimSpace(strings.ReplaceAll(part, MusicNote, "")) == ""
}

// splitWithNotes cuts a marker-free translation at punctuation or spaces near
// each segment's share of the text, then restores the original markers.
func splitWithNotes(text string, weights []float64, infos []noteInfo) []string {
	runes := []rune(text)
	n := len(runes)
	result := make([]string, 0, len(weights))
	idx := 0

	for i, w := range weights {
		var part string
		if i == len(weights)-1 {
			part = strings.TrimSpace(string(runes[min(idx, n):]))
		} else {
			target := int(float64(n) * w)
			end := min(idx+target+int(float64(n)*0.3), n)
			split := end

			for p := end; p > idx; p-- {
				if p >= n {
					continue
				}
				c := runes[p]
				if strings.ContainsRune(".,!?;:", c) {
					split = p + 1
					break
				}
				if c == ' ' && p > idx+int(float64(target)*0.7) {
					split = p + 1
					break
				}
			}
			part = strings.TrimSpace(string(runes[idx:split]))
			idx = split
		}
		result = append(result, restoreNotes(part, infos[i]))
	}
	return result
}

// smartSplit divides text by weights. Text with markers is cut by characters,
// preferring a marker, then punctuation, then a space; other text is cut by words.
func smartSplit(text string, weights []float64) []string {
	if len(weights) == 1 {
		return []string{text}
	}
	if strings.Contains(text, MusicNote) {
		return splitByChars(text, weights)
	}
	return splitByWords(text, weights)
}

func splitByChars(text string, weights []float64) []string {
	runes := []rune(text)
	n := len(runes)
	note := []rune(MusicNote)[0]
	parts := make([]string, 0, len(weights))
	idx := 0

	for i, w := range weights {
		if i == len(weights)-1 {
			parts = append(parts, strings.TrimSpace(string(runes[min(idx, n):])))
			break
		}

		target := int(float64(n) * w)
		end := min(idx+target+int(float64(n)*0.3), n)
		split := end

		for p := end; p > idx; p-- {
			if p >= n {
				continue
			}
			c := runes[p]
			if c == note {
				next := p + 1
				for next < n && runes[next] == note {
					next++
				}
				if next < n && runes[next] == ' ' {
					next++
				}
				split = next
				break
			}
			if strings.ContainsRune(".,!?", c) {
				split = p + 1
				break
			}
			if c == ' ' && p > idx+int(float64(target)*0.7) {
				split = p + 1
				break
			}
		}

		parts = append(parts, strings.TrimSpace(string(runes[idx:split])))
		idx = split
	}
	return parts
}

func splitByWords(text string, weights []float64) []string {
	words := strings.Fields(text)
	parts := make([]string, 0, len(weights))
	idx := 0

	for _, w := range weights {
		want := max(1, int(float64(len(words))*w))
		var taken []string
		stopped := false

		for j := idx; j < min(idx+want, len(words)); j++ {
			taken = append(taken, words[j])
			last := words[j][len(words[j])-1]
			if j < len(words)-1 && strings.IndexByte(".,!?", last) >= 0 && len(taken) >= int(float64(want)*0.7) {
				idx = j + 1
				stopped = true
				break
			}
		}
		if !stopped {
			idx = min(idx+want, len(words))
		}
		parts = append(parts, strings.Join(taken, " "))
	}

	if idx < len(words) {
		rest := strings.Join(words[idx:], " ")
		if parts[len(parts)-1] == "" {
			parts[len(parts)-1] = rest
		} else {
			parts[len(parts)-1] += " " + rest
		}
	}
	return parts
}
