// Package storage provides the receipt object store. Receipts are
// addressed by relative path; every path is checked against directory
// traversal before any filesystem access.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidPath is returned for paths that escape the storage root.
var ErrInvalidPath = errors.New("invalid receipt path")

// Storage is the receipt object store consumed by analysis and intake.
type Storage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) bool
}

// ValidatePath rejects receipt paths containing parent-directory traversal
// or rooted outside the bucket. Called before any storage or network
// access is attempted, for both the analysis and intake paths.
func ValidatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	if strings.Contains(path, "..") {
		return ErrInvalidPath
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return ErrInvalidPath
	}
	return nil
}
