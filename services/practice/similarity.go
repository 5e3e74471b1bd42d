package practice

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// canonicalWords folds interchangeable words onto one form before comparing
var canonicalWords = map[string]string{
	"esse": "este", "aquele": "este",
	"essa": "esta", "aquela": "esta",
	"esses": "estes", "aqueles": "estes",
	"essas": "estas", "aquelas": "estas",
	"tu": "você", "voce": "você",
	"vós": "vocês", "voces": "vocês",
	"a":  "o",
	"as": "os",
	"no": "na",
	"do": "da",
	"that": "this", "these": "this", "those": "this",
}

var stopWords = toSet(
	"o", "a", "os", "as", "um", "uma", "de", "do", "da", "dos", "das",
	"em", "no", "na", "nos", "nas", "para", "por", "com", "sem",
	"the", "an", "is", "are", "was", "were", "be", "been",
	"have", "has", "had", "does", "did", "will", "would",
	"can", "could", "should", "may", "might", "must", "to", "of",
	"in", "on", "at", "for", "with", "by", "from", "and", "or",
	"but", "if", "when", "where", "what", "who", "why", "how",
	"this", "that", "these", "those", "i", "you", "he", "she", "it",
	"we", "they", "me", "him", "her", "us", "them", "my", "your",
	"his", "its", "our", "their",
)

// minFuzzyLength is the shortest word allowed to match with one typo
const minFuzzyLength = 4

// importantCoverage is the share of content words an answer must contain
const importantCoverage = 0.7

// CheckAnswer reports whether a learner's answer is close enough to the expected one.
// Punctuation, case, interchangeable pronouns and articles, and single-letter
// typos in longer words are tolerated.
func CheckAnswer(answer, correct string) bool {
	userNorm := Normalize(answer)
	correctNorm := Normalize(correct)
	if userNorm == "" || correctNorm == "" {
		return false
	}
	if userNorm == correctNorm {
		return true
	}

	userWords := canonicalize(strings.Fields(userNorm))
	correctWords := canonicalize(strings.Fields(correctNorm))
	if strings.Join(userWords, " ") == strings.Join(correctWords, " ") {
		return true
	}

	user := toSet(userWords...)
	want := toSet(correctWords...)

	if Similarity(user, want) >= threshold(max(len(user), len(want))) {
		return true
	}

	userImportant := without(user, stopWords)
	wantImportant := without(want, stopWords)
	if len(wantImportant) == 0 {
		userImportant, wantImportant = user, want
	}
	return float64(matched(userImportant, wantImportant))/float64(len(wantImportant)) >= importantCoverage
}

// Normalize lowercases, drops punctuation and collapses whitespace
func Normalize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}

// Similarity is the Jaccard index of two word sets, counting near-identical words as equal
func Similarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := matched(a, b)
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// threshold grows with sentence length, so short answers tolerate one wrong word
func threshold(words int) float64 {
	switch {
	case words <= 3:
		return 0.60
	case words <= 6:
		return 0.65
	case words <= 10:
		return 0.70
	}
	return 0.75
}

// matched counts the words of want that some word of have matches
func matched(have, want map[string]bool) int {
	n := 0
	for w := range want {
		if have[w] {
			n++
			continue
		}
		for h := range have {
			if sameWord(h, w) {
				n++
				break
			}
		}
	}
	return n
}

func sameWord(a, b string) bool {
	if a == b {
		return true
	}
	if len([]rune(a)) < minFuzzyLength || len([]rune(b)) < minFuzzyLength {
		return false
	}
	return fuzzy.LevenshteinDistance(a, b) <= 1
}

func canonicalize(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		if c, ok := canonicalWords[w]; ok {
			w = c
		}
		out[i] = w
	}
	return out
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func without(set, remove map[string]bool) map[string]bool {
	out := make(map[string]bool, len(set))
	for w := range set {
		if !remove[w] {
			out[w] = true
		}
	}
	return out
}
