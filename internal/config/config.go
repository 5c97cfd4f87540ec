// 包 config：启动配置；先加载 .env 文件，再读取进程环境变量
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"scouter/internal/geocode"
	"scouter/internal/model"
	"scouter/internal/ontology"
	"scouter/internal/phrase"
	"scouter/internal/scoring"
	"scouter/internal/store"
	"scouter/internal/utils"
)

// Config：进程级配置，构造后只读
type Config struct {
	Addr       string
	APIBase    string
	CORSOrigin string

	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string

	RateLimitEnabled bool
	RateLimitQPS     int

	ScoreMax       int
	ScoreProcessor string
	PhraseSource   string
	PhraseEndpoint string
	PhraseTimeout  time.Duration
	Categories     scoring.Categories

	QueryLimit   int
	GeoFilter    bool
	LocationText string

	GeocoderURL      string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int
	GeocodeCacheTTL  time.Duration
	GeoIPPath        string

	StoreDriver  string
	SQLitePath   string
	Postgres     utils.PostgresConfig
	StoreTimeout time.Duration

	Redis           utils.RedisConfig
	MetricsInterval time.Duration

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	DedupTTL     time.Duration

	OntologyPath   string
	OntologyObject ontology.ObjectConfig
}

// OntologySource：配置了对象存储桶时从 S3/MinIO 读取，否则读本地文件
func (c Config) OntologySource() (ontology.Source, error) {
	if c.OntologyObject.Endpoint != "" && c.OntologyObject.Bucket != "" {
		return ontology.NewObjectSource(c.OntologyObject)
	}
	return ontology.FileSource{Path: c.OntologyPath}, nil
}

// Load：加载 .env 与 data/env/.env（已存在的环境变量不被覆盖），随后解析
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	return FromEnv(os.Getenv)
}

// FromEnv：从给定的取值函数解析配置；数值解析失败时回退默认值
// 约束：SCORE_MAX 必须在 0..100，QUERY_LIMIT 必须大于 0
func FromEnv(get func(string) string) (Config, error) {
	e := env(get)
	c := Config{
		Addr:       e.str("ADDR", ":8081"),
		APIBase:    strings.TrimRight(e.str("API_BASE", ""), "/"),
		CORSOrigin: e.str("CORS_ORIGIN", "*"),

		TLSEnabled:  e.boolean("TLS_ENABLE", false),
		TLSCertPath: e.str("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:  e.str("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),

		RateLimitEnabled: e.boolean("RATE_LIMIT_ENABLED", false),
		RateLimitQPS:     e.integer("RATE_LIMIT_QPS", 200),

		ScoreMax:       e.integer("SCORE_MAX", model.ScoreCeiling),
		ScoreProcessor: e.str("SCORE_PROCESSOR", string(scoring.KindWeighted)),
		PhraseSource:   e.str("PHRASE_SOURCE", "lexicon"),
		PhraseEndpoint: e.str("PHRASE_ENDPOINT", ""),
		PhraseTimeout:  e.duration("PHRASE_TIMEOUT", 3*time.Second),
		Categories:     scoring.DefaultCategories(),

		QueryLimit:   e.integer("QUERY_LIMIT", store.DefaultLimit),
		GeoFilter:    e.boolean("GEO_FILTER_ENABLED", false),
		LocationText: e.str("DATASOURCE_LOCATION", ""),

		GeocoderURL:      e.str("GEOCODER_URL", geocode.DefaultPhotonURL),
		GeocodeTimeout:   e.duration("GEOCODE_TIMEOUT", 4*time.Second),
		GeocodeCacheSize: e.integer("GEOCODE_CACHE_SIZE", 1024),
		GeocodeCacheTTL:  e.duration("GEOCODE_CACHE_TTL", 10*time.Minute),
		GeoIPPath:        e.str("GEOIP_DB_PATH", ""),

		StoreDriver: strings.ToLower(e.str("STORE_DRIVER", "postgres")),
		SQLitePath:  e.str("SQLITE_PATH", filepath.Join("data", "events.db")),
		Postgres: utils.PostgresConfig{
			Host:         e.str("PG_HOST", "localhost"),
			Port:         e.str("PG_PORT", "5432"),
			User:         e.str("PG_USER", "postgres"),
			Password:     e.str("PG_PASSWORD", ""),
			DB:           e.str("PG_DB", "scouter"),
			SSLMode:      e.str("PG_SSLMODE", "disable"),
			MaxOpenConns: e.integer("PG_MAX_OPEN_CONNS", 50),
			MaxIdleConns: e.integer("PG_MAX_IDLE_CONNS", 25),
		},
		StoreTimeout: e.duration("STORE_TIMEOUT", 5*time.Second),

		Redis: utils.RedisConfig{
			Host: e.str("REDIS_HOST", "127.0.0.1"),
			Port: e.str("REDIS_PORT", "6379"),
			Pass: e.str("REDIS_PASS", ""),
			DB:   e.integer("REDIS_DB", 0),
		},
		MetricsInterval: e.duration("METRICS_INTERVAL", 15*time.Second),

		AMQPURL:      e.str("AMQP_URL", ""),
		AMQPExchange: e.str("AMQP_EXCHANGE", "scouter.events"),
		AMQPQueue:    e.str("AMQP_QUEUE", "scouter.events.raw"),
		DedupTTL:     e.duration("DEDUP_TTL", 10*time.Minute),

		OntologyPath: e.str("ONTOLOGY_PATH", filepath.Join("data", "ontology", "ontology.yaml")),
		OntologyObject: ontology.ObjectConfig{
			Endpoint:  e.str("ONTOLOGY_S3_ENDPOINT", ""),
			Bucket:    e.str("ONTOLOGY_S3_BUCKET", ""),
			Key:       e.str("ONTOLOGY_S3_KEY", "ontology.yaml"),
			AccessKey: e.str("ONTOLOGY_S3_ACCESS_KEY", ""),
			SecretKey: e.str("ONTOLOGY_S3_SECRET_KEY", ""),
			UseSSL:    e.boolean("ONTOLOGY_S3_USE_SSL", true),
		},
	}
	// 未显式开关时，配置了 REDIS_HOST 即视为启用
	c.Redis.Enabled = e.boolean("REDIS_ENABLED", get("REDIS_HOST") != "")

	if c.ScoreMax < 0 || c.ScoreMax > model.ScoreCeiling {
		return Config{}, fmt.Errorf("SCORE_MAX %d not in [0,%d]", c.ScoreMax, model.ScoreCeiling)
	}
	if c.QueryLimit <= 0 {
		return Config{}, fmt.Errorf("QUERY_LIMIT must be positive, got %d", c.QueryLimit)
	}
	kind, err := phrase.ParseKind(c.PhraseSource)
	if err != nil {
		return Config{}, err
	}
	c.PhraseSource = string(kind)
	if kind == phrase.KindHTTP && c.PhraseEndpoint == "" {
		return Config{}, fmt.Errorf("PHRASE_ENDPOINT is required when PHRASE_SOURCE=http")
	}
	if p := e.str("CATEGORY_FILE", ""); p != "" {
		cats, err := LoadCategories(p)
		if err != nil {
			return Config{}, err
		}
		c.Categories = cats
	}
	return c, nil
}

type categoryFile struct {
	Default    string              `yaml:"default"`
	Categories map[string][]string `yaml:"categories"`
}

// LoadCategories：读取 YAML 分类文件，整体替换内置映射
func LoadCategories(path string) (scoring.Categories, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return scoring.Categories{}, fmt.Errorf("category file: %w", err)
	}
	var f categoryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return scoring.Categories{}, fmt.Errorf("category file %s: %w", path, err)
	}
	return scoring.NewCategories(f.Default, f.Categories), nil
}

type env func(string) string

func (e env) str(k, def string) string {
	if v := strings.TrimSpace(e(k)); v != "" {
		return v
	}
	return def
}

func (e env) integer(k string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(e(k))); err == nil {
		return n
	}
	return def
}

func (e env) boolean(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(e(k))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

// duration：接受 Go 时长文本（4s、250ms）或纯数字毫秒
func (e env) duration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return def
}
