// Package frames validates and counts captured frame files on disk.
//
// The session manager treats the filesystem as the source of truth for
// frame counts: a crash mid-write can leave any in-memory counter stale
// in either direction, so recovery always re-derives the count from the
// files actually present.
package frames

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Frame decoders for header validation.
	_ "image/jpeg"
	_ "image/png"
)

// Result is the outcome of validating a session folder.
type Result struct {
	// ValidFrameCount is the number of decodable frame files.
	ValidFrameCount int `json:"valid_frame_count"`

	// Width and Height are the dimensions of the first valid frame.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validator validates frame files in a session folder.
type Validator interface {
	Validate(sessionFolder string) (Result, error)
}

// DiskValidator validates frames by decoding image headers on disk.
type DiskValidator struct{}

// NewValidator returns the default on-disk validator.
func NewValidator() *DiskValidator {
	return &DiskValidator{}
}

// IsFrameFile reports whether a file name looks like a captured frame.
func IsFrameFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}

// Validate scans the folder and counts frames whose image header
// decodes. Undecodable files (truncated by a crash mid-write) are
// skipped, not errors.
func (DiskValidator) Validate(sessionFolder string) (Result, error) {
	entries, err := os.ReadDir(sessionFolder)
	if err != nil {
		return Result{}, fmt.Errorf("read session folder: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsFrameFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var res Result
	for _, name := range names {
		w, h, ok := decodeHeader(filepath.Join(sessionFolder, name))
		if !ok {
			continue
		}
		res.ValidFrameCount++
		if res.Width == 0 {
			res.Width, res.Height = w, h
		}
	}

	return res, nil
}

func decodeHeader(path string) (w, h int, ok bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
