package intake

import (
	"strconv"
	"time"
)

// Deduplicator remembers processed event identifiers so at-least-once
// webhook retries cause at most one state transition.
type Deduplicator struct {
	seen *boundedCache[string, struct{}]
}

func NewDeduplicator(capacity int, ttl time.Duration) *Deduplicator {
	return newDeduplicator(capacity, ttl, time.Now)
}

func newDeduplicator(capacity int, ttl time.Duration, now func() time.Time) *Deduplicator {
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}
	if ttl == 0 {
		ttl = defaultDedupTTL
	}
	return &Deduplicator{seen: newBoundedCache[string, struct{}](capacity, ttl, now)}
}

// ShouldProcess records eventID and reports whether this is its first
// sighting. Empty identifiers are never deduplicated.
func (d *Deduplicator) ShouldProcess(eventID string) bool {
	if eventID == "" {
		return true
	}
	return d.seen.addIfAbsent(eventID, struct{}{})
}

func (d *Deduplicator) Len() int {
	return d.seen.len()
}

func updateKey(u Update) string {
	if u.UpdateID == nil {
		return ""
	}
	return strconv.FormatInt(*u.UpdateID, 10)
}
