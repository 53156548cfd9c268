package tools

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// CacheKey identifies one tool invocation.
type CacheKey struct {
	ToolName  string
	InputHash string // SHA256 of the raw tool input
}

func (k CacheKey) String() string {
	return "tool:" + k.ToolName + ":hash:" + k.InputHash
}

// NewCacheKey creates a CacheKey from tool name and input.
func NewCacheKey(toolName, input string) CacheKey {
	hash := sha256.Sum256([]byte(input))
	return CacheKey{ToolName: toolName, InputHash: hex.EncodeToString(hash[:])}
}

// DefaultIntrospectionTTL is how long table lists and schemas are reused.
const DefaultIntrospectionTTL = 10 * time.Minute

type cacheEntry struct {
	key        string
	output     string
	expiration time.Time
}

// ToolResultCache is an LRU cache of tool outputs with a TTL per tool.
// Tools without a TTL are never cached.
type ToolResultCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lruList    *list.List
	maxEntries int
	ttl        map[string]time.Duration

	hits   map[string]int64
	misses map[string]int64
}

// NewToolResultCache caches introspection tools. Query results are not cached
// because goals and weights can change between calls.
func NewToolResultCache(maxEntries int) *ToolResultCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &ToolResultCache{
		entries:    make(map[string]*list.Element),
		lruList:    list.New(),
		maxEntries: maxEntries,
		ttl: map[string]time.Duration{
			ListTablesToolName: DefaultIntrospectionTTL,
			SchemaToolName:     DefaultIntrospectionTTL,
		},
		hits:   make(map[string]int64),
		misses: make(map[string]int64),
	}
}

// SetTTL changes the TTL of a tool; zero disables caching for it.
func (c *ToolResultCache) SetTTL(toolName string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl[toolName] = ttl
}

// Get returns a cached output if present and not expired.
func (c *ToolResultCache) Get(key CacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key.String()]
	if !ok {
		c.misses[key.ToolName]++
		return "", false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiration) {
		c.remove(elem)
		c.misses[key.ToolName]++
		return "", false
	}

	c.lruList.MoveToFront(elem)
	c.hits[key.ToolName]++
	return entry.output, true
}

// Set stores an output if the tool is cacheable.
func (c *ToolResultCache) Set(key CacheKey, output string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttl[key.ToolName]
	if ttl <= 0 {
		return
	}

	if elem, ok := c.entries[key.String()]; ok {
		c.remove(elem)
	}
	entry := &cacheEntry{key: key.String(), output: output, expiration: time.Now().Add(ttl)}
	c.entries[entry.key] = c.lruList.PushFront(entry)

	for c.lruList.Len() > c.maxEntries {
		c.remove(c.lruList.Back())
	}
	slog.Debug("tool result cached", "tool", key.ToolName, "ttl_seconds", ttl.Seconds())
}

// Stats returns hit and miss counts of a tool.
func (c *ToolResultCache) Stats(toolName string) (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[toolName], c.misses[toolName]
}

func (c *ToolResultCache) remove(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.lruList.Remove(elem)
}
