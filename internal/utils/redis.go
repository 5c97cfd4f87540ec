// 包 utils：数据库与 Redis 连接工具
package utils

import (
	"github.com/redis/go-redis/v9"

	"scouter/internal/logger"
)

// RedisConfig：Enabled 为 false 时不创建客户端
type RedisConfig struct {
	Enabled bool
	Host    string
	Port    string
	Pass    string
	DB      int
}

// OpenRedis：未启用时返回 nil，调用方据此降级（测量值只进 Prometheus，/metrics 返回空对象）
func OpenRedis(c RedisConfig) *redis.Client {
	if !c.Enabled {
		return nil
	}
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == "" {
		port = "6379"
	}
	addr := host + ":" + port
	db := c.DB
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: c.Pass, DB: db})
}
