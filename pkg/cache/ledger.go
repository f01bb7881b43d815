package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Ledger records which cache keys hold a fully drained collection.
type Ledger interface {
	// IsComplete reports whether key was marked complete.
	IsComplete(ctx context.Context, key Key) (bool, error)

	// MarkComplete marks key complete after its collection was drained.
	MarkComplete(ctx context.Context, key Key) error

	// Unmark removes the mark before key is fetched again.
	Unmark(ctx context.Context, key Key) error
}

// markerDir is the subdirectory of the cache dir holding FileLedger markers.
const markerDir = ".complete"

// FileLedger keeps one marker file per completed key.
type FileLedger struct {
	dir string
}

// NewFileLedger creates a ledger storing markers under cacheDir.
func NewFileLedger(cacheDir string) (*FileLedger, error) {
	dir := filepath.Join(cacheDir, markerDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create marker dir: %w", err)
	}
	return &FileLedger{dir: dir}, nil
}

// IsComplete implements Ledger.
func (l *FileLedger) IsComplete(_ context.Context, key Key) (bool, error) {
	_, err := os.Stat(key.Path(l.dir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkComplete implements Ledger. The marker holds the completion time.
func (l *FileLedger) MarkComplete(_ context.Context, key Key) error {
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	return os.WriteFile(key.Path(l.dir), []byte(stamp), 0o644)
}

// Unmark implements Ledger.
func (l *FileLedger) Unmark(_ context.Context, key Key) error {
	err := os.Remove(key.Path(l.dir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
