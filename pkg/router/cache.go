package router

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/herald-crm/herald/pkg/chat"
)

// responseCache backs the cachedResponse fallback strategy. Keys address
// the canonicalized request content; values are successful non-stream
// responses.
type responseCache struct {
	lru *lru.Cache[string, Response]
}

// newResponseCache returns nil when maxEntries is not positive. A nil
// cache is valid and degrades cachedResponse to the simple payload.
func newResponseCache(maxEntries int) *responseCache {
	if maxEntries <= 0 {
		return nil
	}
	c, err := lru.New[string, Response](maxEntries)
	if err != nil {
		return nil
	}
	return &responseCache{lru: c}
}

// cacheKey hashes the requested model and the canonicalized messages.
// Role changes and content changes both produce distinct keys.
func cacheKey(model string, messages []chat.Message) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, m := range messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *responseCache) get(key string) (Response, bool) {
	if c == nil {
		return Response{}, false
	}
	resp, ok := c.lru.Get(key)
	if ok && resp.Usage != nil {
		usage := *resp.Usage
		resp.Usage = &usage
	}
	return resp, ok
}

func (c *responseCache) put(key string, resp Response) {
	if c == nil {
		return
	}
	c.lru.Add(key, resp)
}
