package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type EventsCfg struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	QueueSize int
}

type Config struct {
	Addr       string
	InstanceID string

	LogLevel   string
	LogConsole bool
	LogSampleN int

	RedisAddr      string
	RedisOpTimeout time.Duration
	H3Res          int

	ImportWorkers        int
	ImportMaxFeatures    int
	ImportMaxBytes       int64
	FingerprintPrecision int

	CentroidStrategy   string
	CatalogCacheSize   int
	SearchDefaultLimit int
	SearchMaxLimit     int

	Events         EventsCfg
	MetricsEnabled bool
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res > 15 {
		res = 15
	}

	host, _ := os.Hostname()

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		InstanceID: getenv("INSTANCE_ID", host),

		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisOpTimeout: getduration("REDIS_OP_TIMEOUT", 2*time.Second),
		H3Res:          res,

		ImportWorkers:        max(getint("IMPORT_WORKERS", 4), 1),
		ImportMaxFeatures:    getint("IMPORT_MAX_FEATURES", 10000),
		ImportMaxBytes:       getint64("IMPORT_MAX_BYTES", 32<<20),
		FingerprintPrecision: getint("FINGERPRINT_PRECISION", 7),

		CentroidStrategy:   getenv("CENTROID_STRATEGY", "vertex"),
		CatalogCacheSize:   getint("CATALOG_CACHE_SIZE", 256),
		SearchDefaultLimit: getint("SEARCH_DEFAULT_LIMIT", 20),
		SearchMaxLimit:     getint("SEARCH_MAX_LIMIT", 200),

		Events: EventsCfg{
			Enabled:   getbool("EVENTS_ENABLED", false),
			Brokers:   splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:     getenv("KAFKA_TOPIC", "campus-imports"),
			QueueSize: getint("EVENTS_QUEUE_SIZE", 1024),
		},
		MetricsEnabled: getbool("METRICS_ENABLED", true),
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
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

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
