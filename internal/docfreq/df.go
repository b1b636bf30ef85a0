// Package docfreq implements the bounded-memory, multi-pass document
// frequency accumulator described in spec.md §4.2, plus the DF table and
// pruned-n-gram set it produces.
package docfreq

import (
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// DF maps an n-gram hash to the number of documents that contain it at
// least once. It is built incrementally by repeated calls to ComputeDF, one
// per corpus; an n-gram finalized by an earlier call keeps that call's count
// and is not recounted by later calls (see ComputeDF). It is safe to share
// by reference once finalized (§3's "immutable after construction"
// invariant).
type DF struct {
	mu     sync.RWMutex
	counts map[uint64]uint64
}

// NewDF creates an empty document-frequency table.
func NewDF() *DF {
	return &DF{counts: make(map[uint64]uint64)}
}

// Lookup returns the document count for hash and whether it is present.
func (d *DF) Lookup(hash uint64) (uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.counts[hash]
	return c, ok
}

// Len returns the number of distinct n-grams currently in the table.
func (d *DF) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.counts)
}

// Set records hash's document frequency as count, overwriting any prior
// value. ComputeDF calls this as it finalizes each pass's batch; it is also
// the supported way to seed a table directly (e.g. from a persisted cache
// or in tests).
func (d *DF) Set(hash uint64, count uint64) {
	d.mu.Lock()
	d.counts[hash] = count
	d.mu.Unlock()
}

// Snapshot returns a copy of the table's contents, suitable for
// serialization by an external cache (pkg/dfcache). It does not observe
// partial merge state: callers should only snapshot a DF that ComputeDF
// has finished populating.
func (d *DF) Snapshot() map[uint64]uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[uint64]uint64, len(d.counts))
	for hash, count := range d.counts {
		out[hash] = count
	}
	return out
}

// LoadSnapshot replaces the table's contents with snapshot, e.g. after a
// cache hit in pkg/dfcache. It overwrites any existing entries.
func (d *DF) LoadSnapshot(snapshot map[uint64]uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts = make(map[uint64]uint64, len(snapshot))
	for hash, count := range snapshot {
		d.counts[hash] = count
	}
}

func (d *DF) has(hash uint64) bool {
	d.mu.RLock()
	_, ok := d.counts[hash]
	d.mu.RUnlock()
	return ok
}

// Prune removes every entry whose count is outside [minCount, maxCount],
// inserting over-threshold entries into a PrunedSet. The minCount check
// here is redundant with the one ComputeDF's own merge step already
// applies (every entry in the table already cleared minCount at insert
// time); it is kept to make Prune correct on its own regardless of how
// the table was populated.
func (d *DF) Prune(minCount, maxCount uint64) *PrunedSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	pruned := NewPrunedSet()
	for hash, count := range d.counts {
		switch {
		case count < minCount:
			delete(d.counts, hash)
		case count > maxCount:
			pruned.Add(hash)
			delete(d.counts, hash)
		}
	}
	return pruned
}

// PrunedSet holds n-grams whose DF exceeded max_count. Membership is
// tracked with a roaring64 bitmap rather than a zero-count sentinel stored
// in DF (see SPEC_FULL.md §9's resolution of the source's open question).
type PrunedSet struct {
	mu sync.RWMutex
	rb *roaring64.Bitmap
}

// NewPrunedSet creates an empty pruned-n-gram set.
func NewPrunedSet() *PrunedSet {
	return &PrunedSet{rb: roaring64.New()}
}

// Add inserts hash into the set.
func (p *PrunedSet) Add(hash uint64) {
	p.mu.Lock()
	p.rb.Add(hash)
	p.mu.Unlock()
}

// Contains reports whether hash was pruned. The set is immutable once
// DF.Prune (or a dfcache load) has returned (§5), so every scorer/refindex
// worker on the hot path
// only ever takes the read lock here; Add/UnmarshalBinary are the sole
// writers, both confined to construction.
func (p *PrunedSet) Contains(hash uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rb.Contains(hash)
}

// Len returns the number of pruned n-grams.
func (p *PrunedSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int(p.rb.GetCardinality())
}

// MarshalBinary serializes the set using roaring64's own compact wire
// format, so pkg/dfcache can store it alongside a cached DF snapshot.
func (p *PrunedSet) MarshalBinary() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rb.MarshalBinary()
}

// UnmarshalBinary replaces the set's contents by decoding data produced by
// MarshalBinary.
func (p *PrunedSet) UnmarshalBinary(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rb.UnmarshalBinary(data)
}
