// Package crtsh implements the summary-endpoint front-end (crt.sh) named as
// an alternative producer in spec.md §1: each poll takes one snapshot query,
// and Poller.Run repeats it every interval until canceled. Unlike the
// primary CT-log tailer, crt.sh's JSON API exposes only certificate
// metadata, not DER bytes, so records here are necessarily thinner than
// the Normalizer's output; they still flow into the same Sink. In
// particular, Fingerprint is "CRTSH-<id>" (the crt.sh entry id), not a
// SHA-256 of the certificate.
package crtsh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"ctsentinel.dev/internal/ctrecord"
	"ctsentinel.dev/internal/sink"
)

const crtshTimeLayout = "2006-01-02T15:04:05"

// entry mirrors one element of crt.sh's `?output=json` response.
type entry struct {
	ID         int64  `json:"id"`
	IssuerName string `json:"issuer_name"`
	CommonName string `json:"common_name"`
	NameValue  string `json:"name_value"`
	NotBefore  string `json:"not_before"`
	NotAfter   string `json:"not_after"`
	Serial     string `json:"serial_number"`
}

// Poller issues periodic snapshot queries against a crt.sh-compatible
// endpoint and forwards new certificates to a Sink.
type Poller struct {
	BaseURL string
	Query   string
	Client  *http.Client
	Sink    sink.Sink
}

// NewPoller returns a Poller with sane crt.sh defaults.
func NewPoller(baseURL string, s sink.Sink) *Poller {
	if baseURL == "" {
		baseURL = "https://crt.sh"
	}
	return &Poller{
		BaseURL: baseURL,
		Query:   "%25",
		Client:  &http.Client{Timeout: 10 * time.Second},
		Sink:    s,
	}
}

// Run polls every interval until ctx is canceled, emitting every
// certificate whose not_before is after lastFetched.
func (p *Poller) Run(ctx context.Context, interval time.Duration, lastFetched time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, err := p.fetch(ctx)
		if err != nil {
			log.Printf("crtsh: fetch failed: %v", err)
		} else {
			fresh := filterNew(entries, lastFetched)
			if len(fresh) > 0 {
				records := toRecords(fresh, p.BaseURL)
				if _, failed, err := p.Sink.BulkIndex(ctx, records); err != nil {
					log.Printf("crtsh: bulk index failed: %v", err)
				} else if failed > 0 {
					log.Printf("crtsh: %d records failed to index", failed)
				}
				lastFetched = time.Now().UTC()
			}
		}

		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]entry, error) {
	url := fmt.Sprintf("%s/?q=%s&output=json", strings.TrimRight(p.BaseURL, "/"), p.Query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var entries []entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode crt.sh response: %w", err)
	}
	return entries, nil
}

func filterNew(entries []entry, lastFetched time.Time) []entry {
	var fresh []entry
	for _, e := range entries {
		notBefore, err := time.Parse(crtshTimeLayout, e.NotBefore)
		if err != nil {
			log.Printf("crtsh: entry %d: invalid not_before %q, skipping", e.ID, e.NotBefore)
			continue
		}
		if notBefore.After(lastFetched) {
			fresh = append(fresh, e)
		}
	}
	return fresh
}

func toRecords(entries []entry, baseURL string) []ctrecord.Certificate {
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	records := make([]ctrecord.Certificate, 0, len(entries))
	for _, e := range entries {
		domains := dedupDomains(e.CommonName, e.NameValue)
		records = append(records, ctrecord.Certificate{
			Fingerprint: fmt.Sprintf("CRTSH-%d", e.ID),
			LogURL:      baseURL,
			CertIndex:   e.ID,
			CertLink:    fmt.Sprintf("%s/?id=%d", baseURL, e.ID),
			AtTime:      now,
			Seen:        now,
			Type:        "x509",
			UpdateType:  "X509LogEntry",
			SerialNumber: e.Serial,
			IssuerCN:    e.IssuerName,
			SubjectCN:   nonEmptyOrNil(e.CommonName),
			AllDomains:  domains,
			KeyUsage:    []string{},
			ExtKeyUsage: []string{},
			ChainSummary: []ctrecord.ChainEntry{},
			Source:      ctrecord.Source{URL: baseURL, Name: "crt.sh"},
		})
	}
	return records
}

func nonEmptyOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dedupDomains(cn, nameValue string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	add(cn)
	for _, n := range strings.Split(nameValue, "\n") {
		add(n)
	}
	if out == nil {
		out = []string{}
	}
	return out
}
