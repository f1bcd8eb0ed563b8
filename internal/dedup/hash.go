// Package dedup provides the record fingerprint and the run-scoped seen-set
// used for intra-batch and cross-run deduplication.
package dedup

import (
	"crypto/md5"
	"encoding/hex"
	"sync"

	"github.com/riverline/support-ingest/internal/domain"
)

// RecordHash represents a 16-byte MD5 fingerprint in binary form. Fixed-size
// arrays avoid string-header overhead and allocate-free comparisons when
// batches run to millions of records.
type RecordHash [16]byte

// HashRecord computes the deduplication fingerprint of a normalized record.
// The hash covers exactly (external_id, author_id, cleaned_text), never the
// timestamp or thread assignment, so re-threading never changes identity.
func HashRecord(r domain.NormalizedRecord) RecordHash {
	h := md5.New()
	h.Write([]byte(r.ExternalID))
	h.Write([]byte(r.AuthorID))
	h.Write([]byte(r.Text))
	var out RecordHash
	copy(out[:], h.Sum(nil))
	return out
}

// ToHex returns the hex-encoded string representation of the hash.
func (h RecordHash) ToHex() string {
	return hex.EncodeToString(h[:])
}

// SeenSet is a synchronized set of record hashes scoped to one pipeline run.
// It is safe for concurrent use by per-record workers.
type SeenSet struct {
	mu   sync.Mutex
	seen map[RecordHash]struct{}
}

// NewSeenSet returns an empty run-scoped seen-set.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[RecordHash]struct{})}
}

// Add records the hash and reports whether it was already present.
func (s *SeenSet) Add(h RecordHash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[h]; dup {
		return true
	}
	s.seen[h] = struct{}{}
	return false
}

// Len returns the number of distinct hashes seen so far.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
