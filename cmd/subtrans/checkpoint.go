package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/upb/lingotube/backend/models"
)

// fileCheckpoint is the on-disk state of a paused run
type fileCheckpoint struct {
	InputDigest              string                      `json:"input_digest"`
	SourceLanguage           string                      `json:"source_language"`
	TargetLanguage           string                      `json:"target_language"`
	MaxGap                   float64                     `json:"max_gap"`
	LastTranslatedGroupIndex int                         `json:"last_translated_group_index"`
	PartialSegments          []models.TranslationSegment `json:"partial_segments"`
	BlockedModels            []string                    `json:"blocked_models,omitempty"`
}

// matches reports whether the checkpoint was written for the same input and settings
func (c *fileCheckpoint) matches(digest, target string, maxGap float64) bool {
	return c.InputDigest == digest && c.TargetLanguage == target && c.MaxGap == maxGap
}

// loadCheckpoint returns nil when no checkpoint exists
func loadCheckpoint(path string) (*fileCheckpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp fileCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// saveCheckpoint replaces the checkpoint file atomically
func saveCheckpoint(path string, cp *fileCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
