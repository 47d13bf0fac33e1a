// Package cache provides the process-local TTL cache used to accelerate
// single-script reads.
//
// The cache is an owned, explicitly constructed component — the server builds
// one and hands it to the script service; tests build their own isolated
// instance. Entries expire after a fixed TTL and are reclaimed by a
// background eviction loop, so memory stays bounded even if nothing reads
// the expired keys. There is no size-based eviction: entries are small script
// snapshots and TTL expiry is enough.
package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/lunahub/scripthub/internal/model"
)

// keyPrefix namespaces script entries; the full key is "script:<id>".
const keyPrefix = "script:"

// ScriptCache is a TTL cache of script snapshots keyed by script ID.
//
// Values are stored and returned by value with a cloned LikedBy slice, so a
// cached snapshot can never be mutated through an alias held by a request
// that populated or read it.
type ScriptCache struct {
	entries *ttlcache.Cache[string, model.Script]
}

// New creates a ScriptCache whose entries live for ttl. The background
// eviction loop starts immediately; call Stop to end it (tests, shutdown).
func New(ttl time.Duration) *ScriptCache {
	entries := ttlcache.New[string, model.Script](
		ttlcache.WithTTL[string, model.Script](ttl),
		// A read must not extend an entry's life — staleness is bounded by
		// the TTL from the moment the snapshot was taken.
		ttlcache.WithDisableTouchOnHit[string, model.Script](),
	)
	go entries.Start() // automatic expired-item eviction loop
	return &ScriptCache{entries: entries}
}

// Key returns the cache key for a script ID.
func Key(id string) string { return keyPrefix + id }

// Get returns the cached snapshot for id, or ok=false on a miss or after
// expiry.
func (c *ScriptCache) Get(id string) (model.Script, bool) {
	item := c.entries.Get(Key(id))
	if item == nil {
		return model.Script{}, false
	}
	return cloneScript(item.Value()), true
}

// Set stores a snapshot of s under the script's ID with the default TTL.
func (c *ScriptCache) Set(s model.Script) {
	c.entries.Set(Key(s.ID), cloneScript(s), ttlcache.DefaultTTL)
}

// Delete invalidates the entry for id. Required after every mutation of the
// underlying script (like/edit/delete); a no-op if the entry is absent.
func (c *ScriptCache) Delete(id string) {
	c.entries.Delete(Key(id))
}

// Flush drops every entry.
func (c *ScriptCache) Flush() {
	c.entries.DeleteAll()
}

// Len returns the number of live entries.
func (c *ScriptCache) Len() int {
	return c.entries.Len()
}

// Stop ends the background eviction loop. The cache remains usable; entries
// simply stop being reclaimed proactively.
func (c *ScriptCache) Stop() {
	c.entries.Stop()
}

func cloneScript(s model.Script) model.Script {
	if s.LikedBy != nil {
		likedBy := make([]int64, len(s.LikedBy))
		copy(likedBy, s.LikedBy)
		s.LikedBy = likedBy
	}
	return s
}
