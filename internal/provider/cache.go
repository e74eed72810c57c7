package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 5 * time.Minute
)

// responseCache absorbs identical prompts within a short window so client
// retries do not fan out into duplicate provider calls.
type responseCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	text      string
	expiresAt time.Time
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	if size <= 0 || ttl <= 0 {
		return &responseCache{}
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return &responseCache{}
	}
	return &responseCache{entries: entries, ttl: ttl, now: time.Now}
}

func (c *responseCache) get(model, prompt string) (string, bool) {
	if c.entries == nil {
		return "", false
	}
	key := cacheKey(model, prompt)
	entry, ok := c.entries.Get(key)
	if !ok {
		return "", false
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return "", false
	}
	return entry.text, true
}

func (c *responseCache) put(model, prompt, text string) {
	if c.entries == nil {
		return
	}
	c.entries.Add(cacheKey(model, prompt), cacheEntry{
		text:      text,
		expiresAt: c.now().Add(c.ttl),
	})
}

func cacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
