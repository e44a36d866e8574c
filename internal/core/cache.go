package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// Fingerprint returns a content hash of raw. Every label and cell is
// length-prefixed, so tables that differ only in where cell boundaries
// fall hash differently.
func Fingerprint(raw RawTable) string {
	h := sha256.New()
	writeField(h, uint64(len(raw.Columns)))
	for _, c := range raw.Columns {
		writeString(h, c)
	}
	writeField(h, uint64(len(raw.Rows)))
	for _, row := range raw.Rows {
		writeField(h, uint64(len(row)))
		for _, cell := range row {
			writeString(h, cell)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
}

func writeString(h hash.Hash, s string) {
	writeField(h, uint64(len(s)))
	h.Write([]byte(s))
}

// normalized is one cached Normalize result.
type normalized struct {
	table  *Table
	report *ValidationReport
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// CachedNormalizer memoizes a Normalizer by input content. Only successful
// results are cached; fatal errors are recomputed each time.
//
// Cached tables are shared between callers and must be treated as read-only.
type CachedNormalizer struct {
	n     *Normalizer
	cache *ristretto.Cache[string, *normalized]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedNormalizer wraps n with a cache holding up to maxEntries results.
func NewCachedNormalizer(n *Normalizer, maxEntries int64) (*CachedNormalizer, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *normalized]{
		NumCounters: maxEntries * 10,
		BufferItems: 64,

		// Every entry costs 1, so MaxCost counts entries.
		MaxCost:            maxEntries,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create normalize cache: %w", err)
	}
	return &CachedNormalizer{n: n, cache: cache}, nil
}

// Normalize returns the cached result for raw's content, computing and
// storing it on a miss. It also returns raw's fingerprint.
func (c *CachedNormalizer) Normalize(raw RawTable) (*Table, *ValidationReport, string, error) {
	key := Fingerprint(raw)
	if hit, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return hit.table, hit.report, key, nil
	}
	c.misses.Add(1)

	table, report, err := c.n.Normalize(raw)
	if err != nil {
		return nil, nil, key, err
	}

	if c.cache.Set(key, &normalized{table: table, report: report}, 1) {
		c.cache.Wait()
	}
	return table, report, key, nil
}

// Schema returns the schema of the wrapped normalizer.
func (c *CachedNormalizer) Schema() Schema {
	return c.n.Schema()
}

// Stats returns hit and miss counts since creation.
func (c *CachedNormalizer) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the cache's background goroutines.
func (c *CachedNormalizer) Close() {
	c.cache.Close()
}
