package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"hw-catchment/internal/hydro"
	"hw-catchment/internal/logger"
	"hw-catchment/internal/metrics"

	"github.com/minio/highwayhash"
	"github.com/redis/go-redis/v9"
)

// ResultCache：求解结果缓存；读写失败一律视为未命中，不影响求解
type ResultCache interface {
	Get(ctx context.Context, key string) ([]TracedEdge, bool)
	Put(ctx context.Context, key string, edges []TracedEdge)
}

var hashKey = []byte("hw-catchment/trace-cache/v1-key!")

// 文档注释：缓存键
// 背景：流网内容、规则集、距离、障碍位置与起点捕捉结果任一变化，键即变化，旧结果自然失效。
func CacheKey(l *Layer, origins []Origin) string {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		panic(err)
	}
	l.Net.Fingerprint(h)
	fmt.Fprintf(h, "rules=%s\nmax=%s\n", l.Rules.Key(), strconv.FormatFloat(l.MaxDist, 'f', -1, 64))
	hydro.WriteBarrierKey(h, l.Barriers)
	for _, o := range origins {
		fmt.Fprintf(h, "\no%d", o.PointID)
		for _, s := range o.Snaps {
			fmt.Fprintf(h, ":%s@%s", s.Edge.ID, strconv.FormatFloat(s.Measure, 'f', 6, 64))
		}
	}
	return "hw:trace:" + strconv.FormatUint(h.Sum64(), 16)
}

// RedisCache：Redis 实现
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]TracedEdge, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.L().Warn("trace_cache_get_error", "key", key, "err", err)
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	var edges []TracedEdge
	if err := json.Unmarshal(data, &edges); err != nil {
		logger.L().Warn("trace_cache_decode_error", "key", key, "err", err)
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return edges, true
}

func (c *RedisCache) Put(ctx context.Context, key string, edges []TracedEdge) {
	data, err := json.Marshal(edges)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.L().Warn("trace_cache_put_error", "key", key, "err", err)
	}
}

// MemoryCache：进程内实现（测试与单次运行）
type MemoryCache struct {
	m map[string][]TracedEdge
}

func NewMemoryCache() *MemoryCache { return &MemoryCache{m: make(map[string][]TracedEdge)} }

func (c *MemoryCache) Get(ctx context.Context, key string) ([]TracedEdge, bool) {
	e, ok := c.m[key]
	if ok {
		metrics.CacheHitsTotal.Inc()
	} else {
		metrics.CacheMissesTotal.Inc()
	}
	return e, ok
}

func (c *MemoryCache) Put(ctx context.Context, key string, edges []TracedEdge) {
	c.m[key] = edges
}
