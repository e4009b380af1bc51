// Package config loads gateway settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/places-cache-gateway/internal/cache/policy"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type ProviderCfg struct {
	BaseURL string
	APIKey  string
}

type ElasticCfg struct {
	Enabled  bool
	URL      string
	Index    string
	Username string
	Password string
}

type AuthCfg struct {
	Enabled   bool
	APIKeys   []string
	JWTSecret string
}

type EventsCfg struct {
	Enabled bool
	Topic   string
}

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int
	Env        string

	CacheBackend   string
	RedisAddr      string
	CacheVersion   string
	CacheOpTimeout time.Duration
	TTLs           policy.TTLs
	MemCacheSize   int

	MinRadius       int
	MaxRadius       int
	DefaultRadius   int
	DefaultProvider string

	Google     ProviderCfg
	Foursquare ProviderCfg
	Elastic    ElasticCfg

	Auth         AuthCfg
	KafkaBrokers []string
	Events       EventsCfg
	Invalidation InvalidationCfg

	H3Res        int
	HotThreshold float64
	HotHalfLife  time.Duration

	Singleflight  bool
	Metrics       MetricsCfg
	TracingStdout bool
}

func FromEnv() Config {
	env := strings.ToLower(getenv("APP_ENV", policy.EnvDevelopment))
	ttls := policy.DefaultTTLs(env)

	res := getint("H3_RES", 8)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	minR := getint("MIN_RADIUS", 50)
	maxR := getint("MAX_RADIUS", 50000)
	if minR <= 0 {
		minR = 50
	}
	if maxR < minR {
		maxR = minR
	}

	backend := strings.ToLower(getenv("CACHE_BACKEND", BackendRedis))
	if backend != BackendMemory {
		backend = BackendRedis
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		Env:        env,

		CacheBackend:   backend,
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheVersion:   getenv("CACHE_VERSION", "v1"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		TTLs: policy.TTLs{
			Nearby:  getduration("CACHE_TTL_NEARBY", ttls.Nearby),
			Details: getduration("CACHE_TTL_DETAILS", ttls.Details),
		},
		MemCacheSize: getint("MEM_CACHE_SIZE", 10_000),

		MinRadius:       minR,
		MaxRadius:       maxR,
		DefaultRadius:   getint("DEFAULT_RADIUS", 1000),
		DefaultProvider: strings.ToLower(getenv("DEFAULT_PROVIDER", "google")),

		Google: ProviderCfg{
			BaseURL: getenv("GOOGLE_PLACES_URL", "https://maps.googleapis.com/maps/api/place"),
			APIKey:  os.Getenv("GOOGLE_PLACES_KEY"),
		},
		Foursquare: ProviderCfg{
			BaseURL: getenv("FOURSQUARE_URL", "https://api.foursquare.com/v3/places"),
			APIKey:  os.Getenv("FOURSQUARE_KEY"),
		},
		Elastic: ElasticCfg{
			Enabled:  getbool("LOCAL_INDEX_ENABLED", false),
			URL:      getenv("ELASTIC_URL", "http://localhost:9200"),
			Index:    getenv("ELASTIC_INDEX", "places"),
			Username: os.Getenv("ELASTIC_USERNAME"),
			Password: os.Getenv("ELASTIC_PASSWORD"),
		},

		Auth: AuthCfg{
			Enabled:   getbool("AUTH_ENABLED", false),
			APIKeys:   parseList(os.Getenv("AUTH_API_KEYS")),
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		},
		KafkaBrokers: parseList(getenv("KAFKA_BROKERS", "localhost:9092")),
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Topic:   getenv("EVENTS_TOPIC", "places-lookups"),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("INVALIDATION_TOPIC", "places-invalidation"),
			GroupID: getenv("KAFKA_GROUP_ID", "places-cache-invalidator"),
		},

		H3Res:        res,
		HotThreshold: getfloat("HOT_THRESHOLD", 10.0),
		HotHalfLife:  getduration("HOT_HALF_LIFE", time.Minute),

		Singleflight: getbool("SINGLEFLIGHT_ENABLED", true),
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
		TracingStdout: getbool("TRACING_STDOUT", false),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// splits "a, b,,c" into [a b c]
func parseList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
