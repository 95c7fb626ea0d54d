package script

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/yaoapp/kun/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Cache the compiled chunks, keyed by the SHA-256 of the source
type Cache struct {
	lru *lru.ARCCache
}

// NewCache create a chunk cache, a size of 0 returns nil (no cache)
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}

	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: arc}, nil
}

// Compile compile the source, reusing the cached chunk when the source was seen before
func (cache *Cache) Compile(source string) (*lua.FunctionProto, error) {
	if cache == nil {
		return compile(source)
	}

	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])
	if proto, ok := cache.lru.Get(key); ok {
		log.Trace("[script] chunk %s hit", key[:8])
		return proto.(*lua.FunctionProto), nil
	}

	proto, err := compile(source)
	if err != nil {
		return nil, err
	}
	cache.lru.Add(key, proto)
	return proto, nil
}

// Len the number of cached chunks
func (cache *Cache) Len() int {
	if cache == nil {
		return 0
	}
	return cache.lru.Len()
}

// Purge remove all the cached chunks
func (cache *Cache) Purge() {
	if cache == nil {
		return
	}
	cache.lru.Purge()
}

func compile(source string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(source), "<script>")
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, "<script>")
}
