package ingest

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"scouter/internal/logger"
	"scouter/internal/model"
)

// Dedup：Redis 位图布隆过滤器，短周期内丢弃重复投递的原始事件
// 背景：上游采集端会在重试时重复发送同一事件，重复评分与入库会放大查询结果
// 约束：rc 为 nil 或 Redis 出错时一律放行；误判率由 bits 与 hashes 决定
type Dedup struct {
	rc     *redis.Client
	key    string
	bits   uint32
	hashes int
	ttl    time.Duration
}

// NewDedup：rc 为 nil 时返回 nil，nil 的 Dedup 不做去重
func NewDedup(rc *redis.Client, ttl time.Duration) *Dedup {
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Dedup{rc: rc, key: "ingest:bloom", bits: 1 << 20, hashes: 4, ttl: ttl}
}

// Seen：true 表示已见过；首次见到时写入位图
func (d *Dedup) Seen(ctx context.Context, ev model.Event) bool {
	if d == nil || d.rc == nil {
		return false
	}
	pos := bloomPositions(fingerprint(ev), d.bits, d.hashes)
	seen := true
	for _, p := range pos {
		b, err := d.rc.GetBit(ctx, d.key, p).Result()
		if err != nil {
			logger.L().Warn("ingest_dedup_error", "err", err)
			return false
		}
		if b == 0 {
			seen = false
		}
	}
	if seen {
		return true
	}
	pipe := d.rc.Pipeline()
	for _, p := range pos {
		pipe.SetBit(ctx, d.key, p, 1)
	}
	pipe.Expire(ctx, d.key, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.L().Warn("ingest_dedup_error", "err", err)
	}
	return false
}

// fingerprint：来源、来源 id、时间段与描述共同确定一个原始事件
func fingerprint(ev model.Event) []byte {
	var b strings.Builder
	b.WriteString(strings.ToLower(ev.Source))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(ev.SourceID, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(ev.Start.UnixMilli(), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(ev.End.UnixMilli(), 10))
	b.WriteByte('|')
	b.WriteString(strings.TrimSpace(ev.Description))
	return []byte(b.String())
}

// bloomPositions：FNV64a 加索引扰动生成 k 个位置
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}
