// Package translation translates subtitle segments unit by unit, saving a
// checkpoint after every unit so a quota pause can be resumed later.
package translation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/services/providers"
)

// Generator produces text for one request; *generation.Caller satisfies it
type Generator interface {
	Generate(ctx context.Context, req providers.GenerateRequest) (*providers.Generation, error)
}

// Translator translates one unit of text
type Translator interface {
	TranslateText(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error)
}

// ProviderTranslator renders the translation prompt and sends it to a Generator
type ProviderTranslator struct {
	gen       Generator
	maxTokens int
}

// NewProviderTranslator wraps a Generator
func NewProviderTranslator(gen Generator) *ProviderTranslator {
	return &ProviderTranslator{gen: gen, maxTokens: 1024}
}

// TranslateText implements Translator
func (t *ProviderTranslator) TranslateText(ctx context.Context, text, targetLanguage, sourceLanguage string) (string, error) {
	gen, err := t.gen.Generate(ctx, providers.GenerateRequest{
		Prompt:    BuildPrompt(text, targetLanguage, sourceLanguage),
		MaxTokens: t.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return gen.Text, nil
}

// Checkpoint is the state saved after each translated unit
type Checkpoint struct {
	GroupIndex    int
	Segments      []models.TranslationSegment
	BlockedModels []string
}

// Options configures one Translate run
type Options struct {
	TargetLanguage string
	SourceLanguage string

	// MaxGap merges segments closer than this many seconds; zero disables grouping
	MaxGap float64

	// StartFromIndex and ExistingTranslations resume a paused run
	StartFromIndex       int
	ExistingTranslations []models.TranslationSegment

	OnProgress   func(progress int, message string)
	OnCheckpoint func(ctx context.Context, cp Checkpoint) error
}

// PausedError means the run stopped on quota exhaustion after saving a checkpoint
type PausedError struct {
	GroupIndex  int
	TotalGroups int
	Cause       error
}

func (e *PausedError) Error() string {
	return fmt.Sprintf("quota exceeded, progress saved up to group %d of %d: %v", e.GroupIndex, e.TotalGroups, e.Cause)
}

func (e *PausedError) Unwrap() error {
	return e.Cause
}

// ErrorKind classifies the pause as quota for providers.KindOf
func (e *PausedError) ErrorKind() providers.ErrorKind {
	return providers.KindQuota
}

// Driver runs checkpointed translations
type Driver struct {
	translator Translator
	blocked    func() []string
	logger     *zap.Logger
}

// NewDriver creates a driver. blocked reports the models to store in checkpoints and may be nil.
func NewDriver(translator Translator, blocked func() []string, logger *zap.Logger) *Driver {
	if blocked == nil {
		blocked = func() []string { return nil }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{translator: translator, blocked: blocked, logger: logger}
}

// Translate translates segments in source order. Timestamps are copied from
// the source segments untouched. A quota failure saves a checkpoint at the
// last finished group and returns a *PausedError; any other failure is returned as is.
func (d *Driver) Translate(ctx context.Context, segments []models.SubtitleSegment, opts Options) ([]models.TranslationSegment, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	groups := GroupSegments(segments, opts.MaxGap)
	total := len(groups)

	start := max(opts.StartFromIndex, 0)
	keep := SegmentsBefore(groups, start)
	if len(opts.ExistingTranslations) < keep {
		return nil, fmt.Errorf("checkpoint holds %d segments, resuming at group %d needs %d", len(opts.ExistingTranslations), start, keep)
	}
	translated := make([]models.TranslationSegment, keep, len(segments))
	copy(translated, opts.ExistingTranslations[:keep])

	for idx := start; idx < total; idx++ {
		group := groups[idx]

		if opts.OnProgress != nil {
			opts.OnProgress(50+idx*40/total, fmt.Sprintf("Translating group %d of %d...", idx+1, total))
		}

		parts, err := d.translateGroup(ctx, group, opts)
		if err != nil {
			if providers.IsQuota(err) {
				d.logger.Warn("translation paused on quota", zap.Int("group", idx), zap.Int("total", total), zap.Error(err))
				if cpErr := d.checkpoint(ctx, opts, idx-1, translated); cpErr != nil {
					return translated, cpErr
				}
				return translated, &PausedError{GroupIndex: idx, TotalGroups: total, Cause: err}
			}
			return translated, err
		}

		for i, seg := range group.Segments {
			translated = append(translated, models.NewTranslationSegment(seg, parts[i]))
		}

		if err := d.checkpoint(ctx, opts, idx, translated); err != nil {
			return translated, err
		}
	}

	return translated, nil
}

func (d *Driver) checkpoint(ctx context.Context, opts Options, idx int, translated []models.TranslationSegment) error {
	if opts.OnCheckpoint == nil {
		return nil
	}
	snapshot := make([]models.TranslationSegment, len(translated))
	copy(snapshot, translated)

	if err := opts.OnCheckpoint(ctx, Checkpoint{GroupIndex: idx, Segments: snapshot, BlockedModels: d.blocked()}); err != nil {
		return fmt.Errorf("save checkpoint at group %d: %w", idx, err)
	}
	return nil
}

// translateGroup returns one translated text per segment of the group
func (d *Driver) translateGroup(ctx context.Context, group Group, opts Options) ([]string, error) {
	text, err := d.translator.TranslateText(ctx, group.Text(), opts.TargetLanguage, opts.SourceLanguage)
	if err != nil {
		return nil, err
	}
	if len(group.Segments) == 1 {
		return []string{text}, nil
	}

	originals := make([]string, len(group.Segments))
	for i, seg := range group.Segments {
		originals[i] = seg.Text
	}
	parts := Distribute(originals, text)

	out := make([]string, len(group.Segments))
	for i, seg := range group.Segments {
		if i < len(parts) && !IsBlankPart(parts[i]) {
			out[i] = parts[i]
			continue
		}

		single, err := d.translator.TranslateText(ctx, seg.Text, opts.TargetLanguage, opts.SourceLanguage)
		switch {
		case err == nil:
			out[i] = single
		case providers.IsQuota(err):
			return nil, err
		default:
			d.logger.Warn("segment retranslation failed, keeping original text", zap.Error(err))
			out[i] = seg.Text
		}
	}
	return out, nil
}
