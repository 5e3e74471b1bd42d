package main

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/lingotube/backend/models"
	"github.com/upb/lingotube/backend/services/providers"
	"github.com/upb/lingotube/backend/services/providers/providertest"
	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/services/translation"
)

// scripted answers "Olá" until its budget runs out, then reports quota exhaustion
type scripted struct {
	mu     sync.Mutex
	budget int
	calls  int
}

func (s *scripted) handle(req *providers.GenerateRequest) (*providers.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.budget == 0 {
		return nil, providers.NewProviderError(providers.Groq, req.Model, providers.KindQuota, "429 rate limit reached", 429, nil)
	}
	s.budget--
	return &providers.Generation{Text: "Olá", Model: req.Model}, nil
}

func registryFor(handler providertest.Handler) session.RegistryFunc {
	return func(keys session.Credentials, opts session.Options) (*providers.Registry, error) {
		r := providers.NewRegistry()
		for name := range keys {
			if err := r.RegisterProvider(providertest.New(name, handler)); err != nil {
				return nil, err
			}
		}
		return r, nil
	}
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GEMINI_API_KEY", "OPENROUTER_API_KEY", "GROQ_API_KEY", "TOGETHER_API_KEY", "MODEL_CATALOG_FILE"} {
		t.Setenv(key, "")
	}
	t.Setenv("PROVIDER_MIN_SPACING", "1ms")
}

func writeSegments(t *testing.T, dir string, n int) string {
	t.Helper()
	segments := make([]models.SubtitleSegment, n)
	for i := range segments {
		segments[i] = models.SubtitleSegment{Start: float64(i * 2), Duration: 1.5, Text: "Hello there."}
	}
	data, err := json.Marshal(segments)
	require.NoError(t, err)

	path := filepath.Join(dir, "segments.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, handler providertest.Handler, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&rootOptions{registry: registryFor(handler)})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error", "--key", "groq=test"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTranslateCommand(t *testing.T) {
	isolateEnv(t)

	t.Run("translates every segment", func(t *testing.T) {
		dir := t.TempDir()
		in := writeSegments(t, dir, 3)
		out := filepath.Join(dir, "result.json")
		provider := &scripted{budget: 10}

		stdout, err := execute(t, provider.handle, "translate", "--in", in, "--out", out, "--target", "pt", "--source", "en")
		require.NoError(t, err)
		assert.Contains(t, stdout, "translated 3 segments from en to pt")

		var result []models.TranslationSegment
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &result))
		require.Len(t, result, 3)
		assert.Equal(t, "Olá", result[2].Translated)
		assert.Equal(t, 4.0, result[2].Start)

		assert.NoFileExists(t, out+".checkpoint.json")
	})

	t.Run("pauses on quota and resumes from the checkpoint", func(t *testing.T) {
		dir := t.TempDir()
		in := writeSegments(t, dir, 4)
		out := filepath.Join(dir, "result.json")
		checkpoint := filepath.Join(dir, "progress.json")
		args := []string{"translate", "--in", in, "--out", out, "--target", "pt", "--source", "en", "--checkpoint", checkpoint}

		provider := &scripted{budget: 2}
		_, err := execute(t, provider.handle, args...)

		var paused *translation.PausedError
		require.ErrorAs(t, err, &paused)
		assert.Equal(t, 2, paused.GroupIndex)
		assert.NoFileExists(t, out)

		cp, err := loadCheckpoint(checkpoint)
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, 1, cp.LastTranslatedGroupIndex)
		assert.Len(t, cp.PartialSegments, 2)

		provider = &scripted{budget: 10}
		_, err = execute(t, provider.handle, args...)
		require.NoError(t, err)
		assert.Equal(t, 2, provider.calls, "only the remaining groups are translated")

		var result []models.TranslationSegment
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &result))
		assert.Len(t, result, 4)
		assert.NoFileExists(t, checkpoint)
	})

	t.Run("refuses a checkpoint from another input", func(t *testing.T) {
		dir := t.TempDir()
		in := writeSegments(t, dir, 2)
		out := filepath.Join(dir, "result.json")
		require.NoError(t, saveCheckpoint(out+".checkpoint.json", &fileCheckpoint{InputDigest: "other", TargetLanguage: "pt"}))

		_, err := execute(t, (&scripted{budget: 10}).handle, "translate", "--in", in, "--out", out, "--target", "pt")
		assert.ErrorContains(t, err, "belongs to a different input")
	})

	t.Run("flag validation", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
			want string
		}{
			{"missing target", []string{"translate", "--in", "a.json", "--out", "b.json"}, "target"},
			{"auto target", []string{"translate", "--in", "a.json", "--out", "b.json", "--target", "auto"}, "--target must be a language code"},
			{"negative gap", []string{"translate", "--in", "a.json", "--out", "b.json", "--target", "pt", "--max-gap", "-1"}, "--max-gap"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := execute(t, (&scripted{}).handle, tt.args...)
				assert.ErrorContains(t, err, tt.want)
			})
		}
	})

	t.Run("empty input", func(t *testing.T) {
		dir := t.TempDir()
		in := filepath.Join(dir, "segments.json")
		require.NoError(t, os.WriteFile(in, []byte("[]"), 0o600))

		_, err := execute(t, (&scripted{}).handle, "translate", "--in", in, "--out", filepath.Join(dir, "out.json"), "--target", "pt")
		assert.ErrorContains(t, err, "holds no segments")
	})
}

func TestLoadCheckpoint(t *testing.T) {
	dir := t.TempDir()

	cp, err := loadCheckpoint(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, cp)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0o600))
	_, err = loadCheckpoint(corrupt)
	assert.ErrorContains(t, err, "failed to parse checkpoint")
}

func TestFileCheckpointMatches(t *testing.T) {
	cp := &fileCheckpoint{InputDigest: "abc", TargetLanguage: "pt", MaxGap: 1.5}

	assert.True(t, cp.matches("abc", "pt", 1.5))
	assert.False(t, cp.matches("abd", "pt", 1.5))
	assert.False(t, cp.matches("abc", "es", 1.5))
	assert.False(t, cp.matches("abc", "pt", 0))
}
