// Package practice generates vocabulary practice phrases from translated
// subtitles and grades learner answers.
package practice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/repositories"
	"github.com/upb/lingotube/backend/services"
	"github.com/upb/lingotube/backend/services/routing"
	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/services/translation"
)

// Directions
const (
	EnglishToPortuguese = "en-to-pt"
	PortugueseToEnglish = "pt-to-en"
)

// Difficulties
const (
	Easy   = "easy"
	Medium = "medium"
	Hard   = "hard"
)

// maxVocabulary caps the words offered to the model
const maxVocabulary = 100

var difficultyDescriptions = map[string]string{
	Easy:   "short, simple sentences with basic vocabulary",
	Medium: "medium-length sentences with intermediate vocabulary",
	Hard:   "longer, more complex sentences with advanced vocabulary",
}

var answerPrefixes = []string{
	"here is the phrase:", "the phrase is:", "phrase:", "sentence:", "answer:",
	"frase:", "resposta:", "a frase é:", "a frase:",
}

// Sessions resolves the routing session of a credential set
type Sessions interface {
	Get(ctx context.Context, overrides session.Credentials) (*session.Session, error)
}

// PhraseRequest asks for a new practice phrase. Vocabulary comes from Words
// and from the stored translations of VideoIDs.
type PhraseRequest struct {
	Direction        string            `json:"direction" validate:"omitempty,oneof=en-to-pt pt-to-en"`
	Difficulty       string            `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	VideoIDs         []string          `json:"video_ids" validate:"omitempty,max=50,dive,required"`
	Words            []string          `json:"words" validate:"omitempty,max=500"`
	CustomPrompt     string            `json:"custom_prompt,omitempty" validate:"omitempty,max=4000"`
	PreferredService string            `json:"preferred_service,omitempty" validate:"omitempty,provider"`
	APIKeys          map[string]string `json:"api_keys,omitempty"`
}

// Phrase is a generated sentence and its translation
type Phrase struct {
	ID             string `json:"id"`
	Original       string `json:"original"`
	Translated     string `json:"translated"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Model          string `json:"model_used"`
	Service        string `json:"service_used"`
}

// Service builds practice phrases through the routing service in practice mode
type Service struct {
	sessions     Sessions
	translations repositories.TranslationRepository
	logger       *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewService creates a practice service. translations may be nil when only
// explicit vocabulary is used.
func NewService(sessions Sessions, translations repositories.TranslationRepository, logger *zap.Logger) *Service {
	return &Service{
		sessions:     sessions,
		translations: translations,
		logger:       logger,
		rnd:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithRand replaces the word sampler's random source
func (s *Service) WithRand(rnd *rand.Rand) *Service {
	s.rnd = rnd
	return s
}

// GeneratePhrase asks a model for a sentence built from the vocabulary, then
// asks the same provider to translate it.
func (s *Service) GeneratePhrase(ctx context.Context, req PhraseRequest) (*Phrase, error) {
	direction := req.Direction
	if direction == "" {
		direction = EnglishToPortuguese
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = Medium
	}
	source, target := "en", "pt"
	if direction == PortugueseToEnglish {
		source, target = "pt", "en"
	}

	vocabulary, err := s.vocabulary(ctx, req, source, target, difficulty)
	if err != nil {
		return nil, err
	}
	if len(vocabulary) == 0 {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "no vocabulary found to build a phrase", nil)
	}

	sess, err := s.sessions.Get(ctx, req.APIKeys)
	if err != nil {
		return nil, err
	}

	words := s.sample(vocabulary, difficulty)
	prompt := PhrasePrompt(req.CustomPrompt, words, source, difficulty)

	gen, err := sess.Router.Generate(ctx, &routing.Request{
		Mode:              routing.ModePractice,
		PreferredProvider: req.PreferredService,
		Prompt:            prompt,
		MaxTokens:         200,
	})
	if err != nil {
		return nil, services.WrapProvider("phrase generation failed", err)
	}
	original := CleanAnswer(gen.Text)
	if original == "" {
		return nil, services.WrapExternal("phrase generation failed", errors.New("model returned an empty phrase"))
	}

	tr, err := sess.Router.Generate(ctx, &routing.Request{
		Mode:              routing.ModePractice,
		PreferredProvider: gen.Provider,
		Prompt:            translation.BuildPrompt(original, target, source),
		MaxTokens:         200,
	})
	if err != nil {
		return nil, services.WrapProvider("phrase translation failed", err)
	}
	translated := CleanAnswer(tr.Text)
	if translated == "" {
		return nil, services.WrapExternal("phrase translation failed", errors.New("model returned an empty translation"))
	}

	s.logger.Info("practice phrase generated",
		zap.String("provider", gen.Provider),
		zap.String("model", gen.Model),
		zap.Int("words", len(words)))

	return &Phrase{
		ID:             phraseID(original, translated),
		Original:       original,
		Translated:     translated,
		SourceLanguage: source,
		TargetLanguage: target,
		Model:          gen.Model,
		Service:        gen.Provider,
	}, nil
}

func (s *Service) vocabulary(ctx context.Context, req PhraseRequest, source, target, difficulty string) ([]string, error) {
	var texts []string
	texts = append(texts, req.Words...)

	if len(req.VideoIDs) > 0 && s.translations != nil {
		for _, id := range req.VideoIDs {
			t, err := s.translations.Get(ctx, id, source, target)
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, services.WrapInternal("failed to load translations", err)
			}
			texts = append(texts, originals(t.Segments)...)
		}
	}
	return ExtractWords(texts, difficulty), nil
}

func (s *Service) sample(words []string, difficulty string) []string {
	lo, hi := 3, 7
	switch difficulty {
	case Easy:
		lo, hi = 2, 4
	case Hard:
		lo, hi = 5, 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(lo+s.rnd.IntN(hi-lo+1), len(words))
	picked := make([]string, len(words))
	copy(picked, words)
	s.rnd.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked[:n]
}

// ExtractWords returns the distinct words of the texts that suit the difficulty, sorted
func ExtractWords(texts []string, difficulty string) []string {
	seen := make(map[string]bool)
	for _, text := range texts {
		text = strings.ReplaceAll(text, translation.MusicNote, " ")
		for _, w := range strings.Fields(Normalize(text)) {
			n := len([]rune(w))
			if n <= 2 {
				continue
			}
			switch difficulty {
			case Easy:
				if !stopWords[w] && n > 4 {
					continue
				}
			case Hard:
				if n < 6 {
					continue
				}
			}
			seen[w] = true
		}
	}

	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	if len(words) > maxVocabulary {
		words = words[:maxVocabulary]
	}
	return words
}

// PhrasePrompt renders the phrase request. A custom template may use the
// {words}, {source_lang}, {difficulty} and {difficulty_desc} placeholders.
func PhrasePrompt(custom string, words []string, source, difficulty string) string {
	list := strings.Join(words, ", ")
	lang := translation.LanguageName(source)
	desc := difficultyDescriptions[difficulty]

	if custom != "" {
		return strings.NewReplacer(
			"{words}", list,
			"{source_lang}", lang,
			"{difficulty}", difficulty,
			"{difficulty_desc}", desc,
		).Replace(custom)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a language teacher. Write one natural, complete sentence in %s using ALL of these words: %s\n\n", lang, list)
	sb.WriteString("Rules:\n")
	sb.WriteString("1. The sentence must be grammatical and make sense.\n")
	sb.WriteString("2. Use every word given.\n")
	fmt.Fprintf(&sb, "3. Match the %s level (%s).\n", difficulty, desc)
	sb.WriteString("4. Return ONLY the sentence, without quotes, labels or explanations.\n")
	return sb.String()
}

// CleanAnswer strips labels and wrapping quotes that models add around a sentence
func CleanAnswer(text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, p := range answerPrefixes {
		if strings.HasPrefix(lower, p) {
			text = strings.TrimSpace(text[len(p):])
			break
		}
	}
	return strings.TrimSpace(strings.Trim(text, `"'`))
}

func originals(segments []models.TranslationSegment) []string {
	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = seg.Original
	}
	return out
}

func phraseID(original, translated string) string {
	sum := sha256.Sum256([]byte(original + translated))
	return "generated-" + hex.EncodeToString(sum[:4])
}
