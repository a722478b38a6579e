package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"ctsentinel.dev/internal/ctrecord"
)

// ElasticsearchSink speaks the Elasticsearch `_bulk` NDJSON HTTP API
// directly, round-robining across hosts. No Elasticsearch Go client is
// vendored anywhere in this codebase's ancestry, so this talks the wire
// protocol itself rather than introduce an unfamiliar dependency.
type ElasticsearchSink struct {
	client   *http.Client
	hosts    []string
	username string
	password string
	index    string

	next int
}

// NewElasticsearchSink returns a sink targeting index across hosts,
// authenticating with HTTP basic auth when username is non-empty.
func NewElasticsearchSink(hosts []string, username, password, index string, requestTimeout time.Duration) *ElasticsearchSink {
	return &ElasticsearchSink{
		client:   &http.Client{Timeout: requestTimeout},
		hosts:    hosts,
		username: username,
		password: password,
		index:    index,
	}
}

// EnsureIndexTemplate registers the field mapping used by every
// downstream Kibana/Grafana dashboard, matching
// original_source/src/elastic.py's ensure_index_exists mapping.
func (e *ElasticsearchSink) EnsureIndexTemplate(ctx context.Context) error {
	body, err := json.Marshal(indexTemplateBody(e.index))
	if err != nil {
		return fmt.Errorf("sink: marshal index template: %w", err)
	}
	req, err := e.newRequest(ctx, http.MethodPut, "/_index_template/ssl-certificates-template", body)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink: put index template: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink: put index template: unexpected status %s", resp.Status)
	}
	return nil
}

// BulkIndex submits records as a single `_bulk` request. A transport-level
// failure reports the whole batch as failed and surfaces err; a 2xx
// response with per-item errors reports a partial failure count without
// an error, per spec.md §4.G.
func (e *ElasticsearchSink) BulkIndex(ctx context.Context, records []ctrecord.Certificate) (success, failed int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	var buf bytes.Buffer
	for _, rec := range records {
		action := map[string]any{"index": map[string]any{"_index": e.index, "_id": rec.Fingerprint}}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return 0, len(records), fmt.Errorf("sink: encode bulk action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(rec); err != nil {
			return 0, len(records), fmt.Errorf("sink: encode record: %w", err)
		}
	}

	req, err := e.newRequest(ctx, http.MethodPost, "/_bulk", buf.Bytes())
	if err != nil {
		return 0, len(records), err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, len(records), fmt.Errorf("sink: bulk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, len(records), fmt.Errorf("sink: bulk request: unexpected status %s", resp.Status)
	}

	var result bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, len(records), fmt.Errorf("sink: decode bulk response: %w", err)
	}

	for _, item := range result.Items {
		entry := item.Index
		if entry.Status >= 200 && entry.Status < 300 {
			success++
		} else {
			failed++
			log.Printf("sink: bulk item %s failed: %s", entry.ID, entry.Error.Reason)
		}
	}
	return success, failed, nil
}

type bulkResponse struct {
	Items []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

func (e *ElasticsearchSink) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	if len(e.hosts) == 0 {
		return nil, fmt.Errorf("sink: no elasticsearch hosts configured")
	}
	host := e.hosts[e.next%len(e.hosts)]
	e.next++

	url := strings.TrimRight(host, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sink: build request: %w", err)
	}
	if e.username != "" {
		req.SetBasicAuth(e.username, e.password)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func indexTemplateBody(indexName string) map[string]any {
	dateFormat := "yyyy-MM-dd'T'HH:mm:ss.SSSXXX||yyyy-MM-dd'T'HH:mm:ss.SSSX||strict_date_optional_time||epoch_millis"
	return map[string]any{
		"index_patterns": []string{indexName},
		"priority":       500,
		"template": map[string]any{
			"mappings": map[string]any{
				"properties": map[string]any{
					"@timestamp":          map[string]any{"type": "date"},
					"timestamp":           map[string]any{"type": "long"},
					"type":                map[string]any{"type": "keyword"},
					"update_type":         map[string]any{"type": "keyword"},
					"fingerprint":         map[string]any{"type": "keyword"},
					"version":             map[string]any{"type": "integer"},
					"serial_number":       map[string]any{"type": "keyword"},
					"signature_algorithm": map[string]any{"type": "keyword"},
					"issuer_cn":           map[string]any{"type": "keyword"},
					"subject_cn":          map[string]any{"type": "keyword"},
					"validity": map[string]any{
						"properties": map[string]any{
							"not_before":  map[string]any{"type": "date", "format": dateFormat},
							"not_after":   map[string]any{"type": "date", "format": dateFormat},
							"valid_days":  map[string]any{"type": "integer"},
						},
					},
					"subject_public_key_info": map[string]any{
						"properties": map[string]any{
							"algorithm":    map[string]any{"type": "keyword"},
							"key_size_bits": map[string]any{"type": "integer"},
							"curve_name":   map[string]any{"type": "keyword"},
						},
					},
					"all_domains":         map[string]any{"type": "keyword"},
					"ocsp_url":            map[string]any{"type": "keyword"},
					"issuer_cert_url":     map[string]any{"type": "keyword"},
					"crl_url":             map[string]any{"type": "keyword"},
					"key_usage":           map[string]any{"type": "keyword"},
					"extended_key_usage":  map[string]any{"type": "keyword"},
					"cert_index":          map[string]any{"type": "integer"},
					"cert_link":           map[string]any{"type": "keyword"},
					"seen":                map[string]any{"type": "date"},
					"source": map[string]any{
						"properties": map[string]any{
							"url":  map[string]any{"type": "keyword"},
							"name": map[string]any{"type": "keyword"},
						},
					},
					"chain_summary": map[string]any{"type": "object", "enabled": false},
				},
			},
		},
	}
}
