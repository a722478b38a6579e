// Package ctconfig loads the process-wide configuration from environment
// variables, the same flat-struct-validated-once-at-startup shape the
// rest of this codebase's ancestry uses for its submission pipeline.
package ctconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read once at startup and never mutated afterward.
type Config struct {
	CTLogListURL string

	FetchInterval  time.Duration
	BatchSize      int
	CacheMaxSize   int
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	MaxRetries     int

	SinkKind string

	ElasticsearchHosts    []string
	ElasticsearchUsername string
	ElasticsearchPassword string
	ElasticsearchIndex    string

	S3Bucket      string
	S3Region      string
	S3EndpointURL string

	OTLPEndpoint string

	crtshURL string
}

// CrtshURL returns the base URL for the crt.sh snapshot front-end,
// defaulting to the public instance per spec.md §6 EXPANSION.
func (c Config) CrtshURL() string {
	if c.crtshURL != "" {
		return c.crtshURL
	}
	return "https://crt.sh"
}

// Load reads every setting from the environment, applying the defaults
// spec'd for each, and fails fast if a value cannot be parsed.
func Load() (Config, error) {
	cfg := Config{
		CTLogListURL: getString("CT_LOG_LIST_URL", "https://www.gstatic.com/ct/log_list/v3/log_list.json"),

		SinkKind: getString("SINK_KIND", "elasticsearch"),

		ElasticsearchUsername: os.Getenv("ELASTICSEARCH_USERNAME"),
		ElasticsearchPassword: os.Getenv("ELASTICSEARCH_PASSWORD"),
		ElasticsearchIndex:    getString("ELASTICSEARCH_INDEX", "ct-certificates"),

		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Region:      os.Getenv("S3_REGION"),
		S3EndpointURL: os.Getenv("S3_ENDPOINT_URL"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		crtshURL:     os.Getenv("CRTSH_URL"),
	}

	if hosts := os.Getenv("ELASTICSEARCH_HOSTS"); hosts != "" {
		for _, h := range strings.Split(hosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				cfg.ElasticsearchHosts = append(cfg.ElasticsearchHosts, h)
			}
		}
	}

	var err error
	if cfg.FetchInterval, err = getSeconds("FETCH_INTERVAL", 30); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize, err = getInt("BATCH_SIZE", 1000); err != nil {
		return Config{}, err
	}
	if cfg.CacheMaxSize, err = getInt("CACHE_MAXSIZE", 500_000); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = getSeconds("CACHE_TTL", 3600); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = getSeconds("REQUEST_TIMEOUT", 10); err != nil {
		return Config{}, err
	}
	if cfg.MaxRetries, err = getInt("MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}

	if cfg.SinkKind == "elasticsearch" && len(cfg.ElasticsearchHosts) == 0 {
		return Config{}, fmt.Errorf("ctconfig: ELASTICSEARCH_HOSTS must be set when SINK_KIND=elasticsearch")
	}
	if cfg.SinkKind == "s3" && cfg.S3Bucket == "" {
		return Config{}, fmt.Errorf("ctconfig: S3_BUCKET must be set when SINK_KIND=s3")
	}

	return cfg, nil
}

func getString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func getInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("ctconfig: %s: %w", name, err)
	}
	return n, nil
}

func getSeconds(name string, defSeconds int) (time.Duration, error) {
	n, err := getInt(name, defSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
