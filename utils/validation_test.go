package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSegment struct {
	Start float64 `json:"start" validate:"gte=0"`
	Text  string  `json:"text"`
}

type testRequest struct {
	VideoID  string        `json:"video_id" validate:"required,max=8"`
	Target   string        `json:"target_language" validate:"required,lang"`
	Service  string        `json:"service,omitempty" validate:"omitempty,provider"`
	Level    string        `json:"level" validate:"omitempty,oneof=easy hard"`
	Segments []testSegment `json:"segments" validate:"required,min=1,dive"`
}

func validRequest() testRequest {
	return testRequest{
		VideoID:  "abc",
		Target:   "pt-BR",
		Service:  "groq",
		Segments: []testSegment{{Start: 0, Text: "hi"}},
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(r *testRequest)
		expectedField string
		expectedMsg   string
	}{
		{
			name:          "missing required field",
			mutate:        func(r *testRequest) { r.VideoID = "" },
			expectedField: "video_id",
			expectedMsg:   "video_id is required",
		},
		{
			name:          "too long",
			mutate:        func(r *testRequest) { r.VideoID = "0123456789" },
			expectedField: "video_id",
			expectedMsg:   "video_id must be at most 8",
		},
		{
			name:          "bad language",
			mutate:        func(r *testRequest) { r.Target = "not a language" },
			expectedField: "target_language",
			expectedMsg:   `target_language must be a language code or "auto"`,
		},
		{
			name:          "unknown provider",
			mutate:        func(r *testRequest) { r.Service = "mistral" },
			expectedField: "service",
			expectedMsg:   "service must be one of: gemini openrouter groq together",
		},
		{
			name:          "oneof",
			mutate:        func(r *testRequest) { r.Level = "medium" },
			expectedField: "level",
			expectedMsg:   "level must be one of: easy hard",
		},
		{
			name:          "nested slice element",
			mutate:        func(r *testRequest) { r.Segments = append(r.Segments, testSegment{Start: -1}) },
			expectedField: "segments[1].start",
			expectedMsg:   "segments[1].start must be greater than or equal to 0",
		},
		{
			name:          "empty slice",
			mutate:        func(r *testRequest) { r.Segments = []testSegment{} },
			expectedField: "segments",
			expectedMsg:   "segments must be at least 1",
		},
	}

	t.Run("valid struct", func(t *testing.T) {
		r := validRequest()
		assert.NoError(t, ValidateStruct(&r))

		r.Target = "auto"
		r.Service = ""
		assert.NoError(t, ValidateStruct(&r))
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)

			err := ValidateStruct(&r)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, "Validation failed", err.Error())

			fields := GetValidationFields(err)
			require.Contains(t, fields, tt.expectedField)
			assert.Equal(t, tt.expectedMsg, fields[tt.expectedField])
		})
	}
}

func TestValidLanguage(t *testing.T) {
	for _, code := range []string{"auto", "en", "pt", "pt-BR", "zh-Hant"} {
		assert.True(t, ValidLanguage(code), code)
	}
	for _, code := range []string{"", "english please", "toolongtobealanguagecode"} {
		assert.False(t, ValidLanguage(code), code)
	}
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "test"}))
	assert.False(t, IsValidationError(assert.AnError))
	assert.Nil(t, GetValidationFields(assert.AnError))
}

func TestParseUUID(t *testing.T) {
	id, err := ParseUUID("6f1c2f9e-8d3b-4c1a-9a47-0d6a3e2f1b55", "id")
	require.NoError(t, err)
	assert.Equal(t, "6f1c2f9e-8d3b-4c1a-9a47-0d6a3e2f1b55", id.String())

	_, err = ParseUUID("nope", "id")
	assert.EqualError(t, err, "id must be a valid UUID")
}
