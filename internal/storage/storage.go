// Package storage keeps complaint evidence (photos and voice notes) in a
// blob store addressed by key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrEmptyKey        = errors.New("storage key is empty")
	ErrInvalidKey      = errors.New("storage key is invalid")
	ErrNotFound        = errors.New("blob not found")
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Store is a minimal blob store.
type Store interface {
	// Put writes r under key and returns the number of bytes stored.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	// Get opens the blob at key. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob. Returns ErrNotFound if absent.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// EvidenceKey builds the object key for an upload attached to a complaint,
// e.g. complaints/CIV-12345678_20250101T120000Z.jpg.
func EvidenceKey(trackingID string, at time.Time, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("complaints/%s_%s.%s", trackingID, at.UTC().Format("20060102T150405Z"), ext)
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	return nil
}
