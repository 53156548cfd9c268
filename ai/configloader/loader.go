package configloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader reads YAML configuration from an override directory, falling back to
// an embedded file system for files the directory does not provide.
type Loader struct {
	baseDir  string
	fallback fs.FS
}

// NewLoader creates a loader. Either argument may be empty/nil.
func NewLoader(baseDir string, fallback fs.FS) *Loader {
	return &Loader{
		baseDir:  baseDir,
		fallback: fallback,
	}
}

// Overlay unmarshals the embedded file into target and then the override file
// on top of it, so an override only needs the keys it changes.
func (l *Loader) Overlay(subPath string, target any) error {
	if l.fallback != nil {
		data, err := fs.ReadFile(l.fallback, subPath)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", subPath, err)
		}
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("unmarshal embedded YAML %s: %w", subPath, err)
		}
	}

	if l.baseDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(l.baseDir, subPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read override %s: %w", subPath, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal override YAML %s: %w", subPath, err)
	}
	return nil
}
