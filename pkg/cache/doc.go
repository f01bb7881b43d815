// Package cache provides a write-through replay cache for paginated GitHub
// collections, stored on local disk.
//
// Every collection URL maps to one file under the cache directory. The file
// name is the URL with '/', ':' and '?' replaced by '_'. Its content is one
// compact JSON object per line, in the order the items were discovered.
//
// # Basic Usage
//
//	paginator := pagination.New(githubClient, pagination.DefaultConfig())
//	store, err := cache.NewStore(paginator, cache.Config{Dir: ".cache"})
//	if err != nil {
//		return err
//	}
//
//	for item, err := range store.FetchOrReplay(ctx, contributorsURL) {
//		if err != nil {
//			return err
//		}
//		// use item
//	}
//
// On a miss the store creates the file, drives the paginator and appends
// each item to the file right before handing it to the caller, so the cache
// fills in lockstep with consumption. On a hit the file is replayed line by
// line and no request is made.
//
// # Completeness
//
// Without a Ledger the mere existence of a file is taken as proof that it
// is complete. A run interrupted mid-fetch therefore leaves a truncated file
// that later runs replay as if it were whole. Configuring a Ledger closes
// that gap: the store marks a key complete only after the collection was
// drained to the end, and files without a mark are fetched again.
//
//   - FileLedger keeps marker files next to the cache
//   - RedisLedger keeps the marks in a Redis set, shared across hosts
//
// # Concurrency
//
// Calls for distinct URLs may run concurrently. Concurrent calls for the
// same URL that is not yet cached are not coordinated: each fetches and
// rewrites the file independently.
//
// # Metrics
//
//   - ghcc_cache_hits_total - Collections replayed from disk
//   - ghcc_cache_misses_total - Collections fetched from GitHub
//   - ghcc_cache_records_written_total - Lines appended to cache files
//   - ghcc_cache_records_replayed_total - Lines replayed from cache files
//   - ghcc_cache_incomplete_total - Files refetched for lack of a completion mark
//   - ghcc_cache_errors_total{operation} - Cache operation errors
package cache
