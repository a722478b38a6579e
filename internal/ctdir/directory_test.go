package ctdir

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serverWithBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestLoadFlatLogsShape(t *testing.T) {
	srv := serverWithBody(t, http.StatusOK, `{
		"logs": [
			{"description": "log a", "url": "https://a/", "state": {"usable": {}}},
			{"description": "log b (retired)", "url": "https://b/", "state": {"retired": {}}}
		]
	}`)
	defer srv.Close()

	got := Load(context.Background(), srv.Client(), srv.URL)
	if len(got) != 1 || got[0].Description != "log a" {
		t.Fatalf("Load() = %+v, want one usable descriptor", got)
	}
}

func TestLoadOperatorsShape(t *testing.T) {
	srv := serverWithBody(t, http.StatusOK, `{
		"operators": [
			{"logs": [{"description": "op log", "url": "https://op/", "state": {"usable": {}}}]}
		]
	}`)
	defer srv.Close()

	got := Load(context.Background(), srv.Client(), srv.URL)
	if len(got) != 1 || got[0].Description != "op log" {
		t.Fatalf("Load() = %+v, want one descriptor from operators", got)
	}
}

func TestLoadTemporalIntervalFiltering(t *testing.T) {
	srv := serverWithBody(t, http.StatusOK, `{
		"logs": [
			{"description": "expired", "url": "https://x/", "state": {"usable": {}},
			 "temporal_interval": {"start_inclusive": "2000-01-01T00:00:00Z", "end_exclusive": "2001-01-01T00:00:00Z"}},
			{"description": "current", "url": "https://y/", "state": {"usable": {}},
			 "temporal_interval": {"start_inclusive": "2000-01-01T00:00:00Z", "end_exclusive": "2999-01-01T00:00:00Z"}}
		]
	}`)
	defer srv.Close()

	got := Load(context.Background(), srv.Client(), srv.URL)
	if len(got) != 1 || got[0].Description != "current" {
		t.Fatalf("Load() = %+v, want only the current log", got)
	}
}

func TestLoadUnparseableIntervalKeepsDescriptor(t *testing.T) {
	srv := serverWithBody(t, http.StatusOK, `{
		"logs": [
			{"description": "weird", "url": "https://z/", "state": {"usable": {}},
			 "temporal_interval": "not-an-object"}
		]
	}`)
	defer srv.Close()

	got := Load(context.Background(), srv.Client(), srv.URL)
	if len(got) != 1 {
		t.Fatalf("Load() = %+v, want descriptor kept despite bad interval", got)
	}
}

func TestLoadFailureReturnsEmptyNotError(t *testing.T) {
	srv := serverWithBody(t, http.StatusInternalServerError, "boom")
	defer srv.Close()

	got := Load(context.Background(), srv.Client(), srv.URL)
	if got != nil {
		t.Fatalf("Load() = %+v, want nil on failure", got)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	srv := serverWithBody(t, http.StatusOK, `{not json`)
	defer srv.Close()

	got := Load(context.Background(), srv.Client(), srv.URL)
	if got != nil {
		t.Fatalf("Load() = %+v, want nil on malformed JSON", got)
	}
}
