package crtsh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ctsentinel.dev/internal/sink"
)

func TestRunFetchesAndFiltersByNotBefore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": 1, "common_name": "old.example", "name_value": "old.example", "not_before": "2000-01-01T00:00:00", "serial_number": "01"},
			{"id": 2, "common_name": "new.example", "name_value": "new.example\nwww.new.example", "not_before": "2999-01-01T00:00:00", "serial_number": "02"}
		]`))
	}))
	defer srv.Close()

	ms := sink.NewMemorySink()
	p := NewPoller(srv.URL, ms)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Run(ctx, 5*time.Millisecond, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	recs := ms.Records()
	if len(recs) == 0 {
		t.Fatal("expected at least one record from the fresh entry")
	}
	found := false
	for _, r := range recs {
		if r.CertIndex == 2 {
			found = true
			if len(r.AllDomains) != 2 {
				t.Errorf("AllDomains = %v, want 2 entries", r.AllDomains)
			}
		}
		if r.CertIndex == 1 {
			t.Errorf("old entry should have been filtered out: %+v", r)
		}
	}
	if !found {
		t.Fatal("expected the fresh entry (id=2) to be indexed")
	}
}

func TestRunHandlesMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	ms := sink.NewMemorySink()
	p := NewPoller(srv.URL, ms)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	p.Run(ctx, 5*time.Millisecond, time.Now())

	if len(ms.Records()) != 0 {
		t.Errorf("expected no records from malformed response")
	}
}
