package router

import (
	"testing"

	"github.com/herald-crm/herald/pkg/chat"
)

func TestCacheKeyDistinguishesContent(t *testing.T) {
	a := cacheKey("qwen-max", []chat.Message{chat.User("hello")})
	b := cacheKey("qwen-max", []chat.Message{chat.User("hello")})
	if a != b {
		t.Error("identical requests should produce identical keys")
	}

	if cacheKey("qwen-max", []chat.Message{chat.User("bye")}) == a {
		t.Error("different content should produce different keys")
	}
	if cacheKey("qwen-turbo", []chat.Message{chat.User("hello")}) == a {
		t.Error("different models should produce different keys")
	}
	if cacheKey("qwen-max", []chat.Message{chat.System("hello")}) == a {
		t.Error("different roles should produce different keys")
	}
}

func TestResponseCacheDisabled(t *testing.T) {
	if c := newResponseCache(0); c != nil {
		t.Error("maxEntries 0 should disable the cache")
	}
	if c := newResponseCache(-1); c != nil {
		t.Error("negative maxEntries should disable the cache")
	}

	// nil cache must be safe to use
	var c *responseCache
	c.put("k", Response{Content: "x"})
	if _, ok := c.get("k"); ok {
		t.Error("nil cache should never hit")
	}
}

func TestResponseCacheRoundTrip(t *testing.T) {
	c := newResponseCache(4)
	if c == nil {
		t.Fatal("expected live cache")
	}

	c.put("k1", Response{Content: "answer", Model: "qwen-max"})

	got, ok := c.get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Content != "answer" || got.Model != "qwen-max" {
		t.Errorf("got %+v", got)
	}

	if _, ok := c.get("missing"); ok {
		t.Error("unexpected hit")
	}
}

func TestResponseCacheEvictsOldest(t *testing.T) {
	c := newResponseCache(2)

	c.put("k1", Response{Content: "one"})
	c.put("k2", Response{Content: "two"})
	c.put("k3", Response{Content: "three"})

	if _, ok := c.get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	if _, ok := c.get("k2"); !ok {
		t.Error("k2 should survive")
	}
	if _, ok := c.get("k3"); !ok {
		t.Error("k3 should survive")
	}
}

func TestResponseCacheCopiesUsage(t *testing.T) {
	c := newResponseCache(2)
	c.put("k", Response{Content: "x", Usage: &chat.Usage{TotalTokens: 10}})

	first, _ := c.get("k")
	first.Usage.TotalTokens = 999

	second, _ := c.get("k")
	if second.Usage.TotalTokens != 10 {
		t.Errorf("cached usage mutated through returned copy: %d", second.Usage.TotalTokens)
	}
}
