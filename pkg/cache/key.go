package cache

import (
	"path/filepath"
	"strings"
)

var unsafePathChars = strings.NewReplacer("/", "_", ":", "_", "?", "_")

// Key is the cache file name derived from a collection URL.
type Key string

// KeyFor returns the deterministic cache key of url.
// Example:
//
//	https://api.github.com/orgs/acme/repos?type=private
//	https___api.github.com_orgs_acme_repos_type=private
//
// The transform is not injective: URLs that differ only by which of the
// replaced characters appear in a position map to the same key.
func KeyFor(url string) Key {
	return Key(unsafePathChars.Replace(url))
}

// String returns the key as a file name.
func (k Key) String() string {
	return string(k)
}

// Path returns the cache file path of k under dir.
func (k Key) Path(dir string) string {
	return filepath.Join(dir, string(k))
}
