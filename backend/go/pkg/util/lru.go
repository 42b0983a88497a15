package util

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// CacheConfig 用于配置LRU缓存的行为。
type CacheConfig struct {
	// Capacity 是缓存的最大元素数量，必须大于 0。
	Capacity int
	// TTL 是元素自最后一次写入起的存活时间。如果为0，则元素永不过期。
	TTL time.Duration
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	expiration time.Time
}

// LRUCache 是一个支持泛型、线程安全、可选 TTL 的 LRU 缓存。
type LRUCache[K comparable, V any] struct {
	config CacheConfig
	ll     *list.List
	items  map[K]*list.Element
	now    func() time.Time
	mu     sync.Mutex
}

// NewLRU 使用指定的配置创建一个LRU缓存实例。
func NewLRU[K comparable, V any](config CacheConfig) (*LRUCache[K, V], error) {
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("LRU 缓存容量必须大于 0，当前为 %d", config.Capacity)
	}
	return &LRUCache[K, V]{
		config: config,
		ll:     list.New(),
		items:  make(map[K]*list.Element),
		now:    time.Now,
	}, nil
}

// Get 根据键获取一个值，过期的元素会被顺带移除。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *LRUCache[K, V]) getLocked(key K) (V, bool) {
	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.config.TTL > 0 && c.now().After(e.expiration) {
		c.remove(el)
		return zero, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// Put 添加或更新一个键值对，超出容量时淘汰最久未使用的元素。
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value)
}

func (c *LRUCache[K, V]) putLocked(key K, value V) {
	var expiration time.Time
	if c.config.TTL > 0 {
		expiration = c.now().Add(c.config.TTL)
	}
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiration = expiration
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value, expiration: expiration})
	for c.ll.Len() > c.config.Capacity {
		c.remove(c.ll.Back())
	}
}

// GetOrCreate 返回已有的值；不存在或已过期时用 create 创建并写入。整个过程持有锁。
func (c *LRUCache[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.getLocked(key); ok {
		return v
	}
	v := create()
	c.putLocked(key, v)
	return v
}

// Len 返回当前缓存中的条目数量（包括尚未被清理的过期条目）。
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRUCache[K, V]) remove(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}
