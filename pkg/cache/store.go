package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/gh-contrib-collector/pkg/logging"
)

// DefaultDir is the cache directory used when none is configured.
const DefaultDir = ".cache"

// ErrCorruptRecord indicates a cache file line that is not valid JSON.
var ErrCorruptRecord = errors.New("corrupt cache record")

// Source produces the items of a collection from the network.
// *pagination.Paginator implements it.
type Source interface {
	Paginate(ctx context.Context, url string) iter.Seq2[json.RawMessage, error]
}

// Config holds store configuration.
type Config struct {
	// Dir is the cache directory (default: .cache).
	Dir string

	// Ledger records completed collections. Nil means an existing file is
	// always considered complete.
	Ledger Ledger
}

// Store is a URL-addressed disk cache in front of a Source.
type Store struct {
	source Source
	dir    string
	ledger Ledger
	logger zerolog.Logger
}

// NewStore creates a store and its cache directory.
func NewStore(source Source, cfg Config) (*Store, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &Store{
		source: source,
		dir:    cfg.Dir,
		ledger: cfg.Ledger,
		logger: logging.NewLogger("cache"),
	}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// FetchOrReplay returns the items of the collection at url. A complete
// cache file is replayed without network access; otherwise the collection
// is fetched and every item is appended to the cache file before it is
// yielded. Errors are yielded once and end the sequence.
func (s *Store) FetchOrReplay(ctx context.Context, url string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		key := KeyFor(url)
		path := key.Path(s.dir)

		hit, err := s.isComplete(ctx, key, path)
		if err != nil {
			CacheErrors.WithLabelValues("lookup").Inc()
			yield(nil, err)
			return
		}

		if hit {
			CacheHits.Inc()
			s.logger.Info().Str("url", url).Str("file", path).Msg("Cache hit, replaying from disk")
			s.replay(path, yield)
			return
		}

		CacheMisses.Inc()
		s.logger.Info().Str("url", url).Str("file", path).Msg("Cache miss, loading from GitHub")
		s.fetch(ctx, url, key, path, yield)
	}
}

// isComplete reports whether the cache file for key can be replayed.
func (s *Store) isComplete(ctx context.Context, key Key, path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat cache file: %w", err)
	}

	if s.ledger == nil {
		return true, nil
	}

	done, err := s.ledger.IsComplete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check completion of %s: %w", key, err)
	}
	if !done {
		IncompleteEntries.Inc()
		s.logger.Warn().Str("file", path).Msg("Cache file was never marked complete, fetching again")
	}
	return done, nil
}

func (s *Store) replay(path string, yield func(json.RawMessage, error) bool) {
	f, err := os.Open(path)
	if err != nil {
		CacheErrors.WithLabelValues("read").Inc()
		yield(nil, fmt.Errorf("open cache file: %w", err))
		return
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for line := 1; ; line++ {
		data, readErr := r.ReadBytes('\n')
		data = bytes.TrimRight(data, "\r\n")

		if len(data) > 0 {
			if !json.Valid(data) {
				CacheErrors.WithLabelValues("read").Inc()
				yield(nil, fmt.Errorf("%w: %s line %d", ErrCorruptRecord, path, line))
				return
			}
			RecordsReplayed.Inc()
			if !yield(json.RawMessage(data), nil) {
				return
			}
		}

		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			CacheErrors.WithLabelValues("read").Inc()
			yield(nil, fmt.Errorf("read cache file: %w", readErr))
			return
		}
	}
}

func (s *Store) fetch(ctx context.Context, url string, key Key, path string, yield func(json.RawMessage, error) bool) {
	if s.ledger != nil {
		if err := s.ledger.Unmark(ctx, key); err != nil {
			CacheErrors.WithLabelValues("ledger").Inc()
			yield(nil, fmt.Errorf("clear completion of %s: %w", key, err))
			return
		}
	}

	f, err := os.Create(path)
	if err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		yield(nil, fmt.Errorf("create cache file: %w", err))
		return
	}
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	var buf bytes.Buffer
	for item, err := range s.source.Paginate(ctx, url) {
		if err != nil {
			yield(nil, err)
			return
		}

		buf.Reset()
		if err := json.Compact(&buf, item); err != nil {
			CacheErrors.WithLabelValues("write").Inc()
			yield(nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err))
			return
		}
		record := json.RawMessage(bytes.Clone(buf.Bytes()))
		buf.WriteByte('\n')

		if _, err := f.Write(buf.Bytes()); err != nil {
			CacheErrors.WithLabelValues("write").Inc()
			yield(nil, fmt.Errorf("write cache file: %w", err))
			return
		}
		RecordsWritten.Inc()

		if !yield(record, nil) {
			return
		}
	}

	err = f.Close()
	f = nil
	if err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		yield(nil, fmt.Errorf("close cache file: %w", err))
		return
	}

	if s.ledger != nil {
		if err := s.ledger.MarkComplete(ctx, key); err != nil {
			CacheErrors.WithLabelValues("ledger").Inc()
			yield(nil, fmt.Errorf("mark %s complete: %w", key, err))
		}
	}
}
