package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/services/translation"
	"github.com/upb/lingotube/backend/utils"
)

type translateOptions struct {
	in         string
	out        string
	source     string
	target     string
	service    string
	checkpoint string
	maxGap     float64
}

func newTranslateCmd(root *rootOptions) *cobra.Command {
	var opts translateOptions

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a segments file, resuming from a checkpoint when one exists",
		Example: `  subtrans translate --in segments.json --out result.json --target pt
  subtrans translate --in segments.json --out result.json --target es --source en --max-gap 1.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			e, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = e.logger.Sync() }()
			return runTranslate(cmd.Context(), e, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.in, "in", "", "Input JSON file with an array of {start, duration, text} segments")
	f.StringVar(&opts.out, "out", "", "Output JSON file for the translated segments")
	f.StringVar(&opts.target, "target", "", "Target language code")
	f.StringVar(&opts.source, "source", translation.AutoDetect, `Source language code or "auto"`)
	f.StringVar(&opts.service, "service", "", "Preferred provider")
	f.StringVar(&opts.checkpoint, "checkpoint", "", "Checkpoint file (default <out>.checkpoint.json)")
	f.Float64Var(&opts.maxGap, "max-gap", 0, "Merge segments closer than this many seconds into one unit; 0 disables merging")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func (o *translateOptions) validate() error {
	if !utils.ValidLanguage(o.target) || o.target == translation.AutoDetect {
		return fmt.Errorf("--target must be a language code, got %q", o.target)
	}
	if !utils.ValidLanguage(o.source) {
		return fmt.Errorf(`--source must be a language code or "auto", got %q`, o.source)
	}
	if o.maxGap < 0 {
		return fmt.Errorf("--max-gap cannot be negative")
	}
	if o.checkpoint == "" {
		o.checkpoint = o.out + ".checkpoint.json"
	}
	return nil
}

func runTranslate(ctx context.Context, e *env, opts translateOptions, w io.Writer) error {
	raw, err := os.ReadFile(opts.in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	var segments []models.SubtitleSegment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return fmt.Errorf("failed to parse %s: %w", opts.in, err)
	}
	if len(segments) == 0 {
		return fmt.Errorf("%s holds no segments", opts.in)
	}

	sess, err := e.sessions.Get(ctx, nil)
	if err != nil {
		return err
	}

	state := &fileCheckpoint{
		InputDigest:              digest(raw),
		SourceLanguage:           translation.ResolveSourceLanguage(opts.source, segments),
		TargetLanguage:           opts.target,
		MaxGap:                   opts.maxGap,
		LastTranslatedGroupIndex: -1,
	}

	driverOpts := translation.Options{
		TargetLanguage: opts.target,
		MaxGap:         opts.maxGap,
		OnProgress: func(progress int, message string) {
			e.logger.Info(message, zap.Int("progress", progress))
		},
		OnCheckpoint: func(_ context.Context, cp translation.Checkpoint) error {
			state.LastTranslatedGroupIndex = cp.GroupIndex
			state.PartialSegments = cp.Segments
			state.BlockedModels = cp.BlockedModels
			return saveCheckpoint(opts.checkpoint, state)
		},
	}

	saved, err := loadCheckpoint(opts.checkpoint)
	if err != nil {
		return err
	}
	if saved != nil {
		if !saved.matches(state.InputDigest, opts.target, opts.maxGap) {
			return fmt.Errorf("checkpoint %s belongs to a different input or settings; delete it to start over", opts.checkpoint)
		}
		state = saved
		sess.Tracker.LoadBlocked(saved.BlockedModels)
		driverOpts.StartFromIndex = saved.LastTranslatedGroupIndex + 1
		driverOpts.ExistingTranslations = saved.PartialSegments
		e.logger.Info("resuming from checkpoint",
			zap.String("checkpoint", opts.checkpoint),
			zap.Int("next_group", driverOpts.StartFromIndex),
			zap.Strings("blocked_models", saved.BlockedModels))
	}
	driverOpts.SourceLanguage = state.SourceLanguage

	driver := translation.NewDriver(sess.Translator(opts.service), sess.BlockedModels, e.logger)
	result, err := driver.Translate(ctx, segments, driverOpts)
	if err != nil {
		var paused *translation.PausedError
		if errors.As(err, &paused) {
			return fmt.Errorf("%w; run the same command again to resume from %s", paused, opts.checkpoint)
		}
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := writeFileAtomic(opts.out, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.out, err)
	}
	if err := os.Remove(opts.checkpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("failed to remove checkpoint", zap.Error(err))
	}

	fmt.Fprintf(w, "translated %d segments from %s to %s into %s\n", len(result), state.SourceLanguage, opts.target, opts.out)
	return nil
}
