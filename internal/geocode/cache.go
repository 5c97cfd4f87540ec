package geocode

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"scouter/internal/metrics"
)

// Cached：进程内 LRU，位于任意 Resolver 之前
// 背景：热点地址（数据源所在城市）在短周期内重复查询；TTL 可调，不落盘
// 约束：只缓存成功结果（含“无法解析”），错误不缓存
type Cached struct {
	next Resolver
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type entry struct {
	k   string
	v   Result
	exp time.Time
}

// NewCached：capacity<=0 时直接返回 next
func NewCached(next Resolver, capacity int, ttl time.Duration) Resolver {
	if capacity <= 0 {
		return next
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{next: next, cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *Cached) Resolve(ctx context.Context, address string) (Result, error) {
	k := strings.ToLower(strings.TrimSpace(address))
	if v, ok := c.get(k); ok {
		metrics.GeocodeCacheHitsTotal.Inc()
		return v, nil
	}
	metrics.GeocodeCacheMissesTotal.Inc()
	v, err := c.next.Resolve(ctx, address)
	if err != nil {
		return Result{}, err
	}
	c.set(k, v)
	return v, nil
}

func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

func (c *Cached) get(k string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(entry)
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return Result{}, false
}

func (c *Cached) set(k string, v Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = entry{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(entry{k: k, v: v, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		it := back.Value.(entry)
		delete(c.dict, it.k)
		c.lst.Remove(back)
	}
}
