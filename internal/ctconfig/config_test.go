package ctconfig

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CT_LOG_LIST_URL", "SINK_KIND", "ELASTICSEARCH_HOSTS", "ELASTICSEARCH_USERNAME",
		"ELASTICSEARCH_PASSWORD", "ELASTICSEARCH_INDEX", "S3_BUCKET", "S3_REGION",
		"S3_ENDPOINT_URL", "OTEL_EXPORTER_OTLP_ENDPOINT", "FETCH_INTERVAL", "BATCH_SIZE",
		"CACHE_MAXSIZE", "CACHE_TTL", "REQUEST_TIMEOUT", "MAX_RETRIES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsRequireElasticsearchHosts(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when SINK_KIND=elasticsearch and ELASTICSEARCH_HOSTS unset")
	}
}

func TestLoadMemorySinkNeedsNoHosts(t *testing.T) {
	clearEnv(t)
	t.Setenv("SINK_KIND", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FetchInterval.Seconds() != 30 {
		t.Errorf("FetchInterval = %v, want 30s", cfg.FetchInterval)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.BatchSize)
	}
}

func TestLoadParsesHostsAndOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SINK_KIND", "elasticsearch")
	t.Setenv("ELASTICSEARCH_HOSTS", "http://a:9200, http://b:9200")
	t.Setenv("BATCH_SIZE", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ElasticsearchHosts) != 2 || cfg.ElasticsearchHosts[0] != "http://a:9200" {
		t.Errorf("ElasticsearchHosts = %v", cfg.ElasticsearchHosts)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250", cfg.BatchSize)
	}
}

func TestLoadS3RequiresBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("SINK_KIND", "s3")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when SINK_KIND=s3 and S3_BUCKET unset")
	}
}

func TestLoadBadInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("SINK_KIND", "memory")
	t.Setenv("BATCH_SIZE", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed BATCH_SIZE")
	}
}
