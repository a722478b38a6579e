package ctsupervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ctsentinel.dev/internal/ctconfig"
	"ctsentinel.dev/internal/sink"
)

func TestRunFailsFastOnEmptyLogList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logs": []}`))
	}))
	defer srv.Close()

	cfg := ctconfig.Config{
		CTLogListURL:   srv.URL,
		RequestTimeout: time.Second,
		FetchInterval:  time.Millisecond,
		BatchSize:      10,
		CacheMaxSize:   10,
		CacheTTL:       time.Minute,
		MaxRetries:     0,
	}

	if err := Run(context.Background(), cfg, sink.NewMemorySink()); err == nil {
		t.Fatal("expected error for empty log list")
	}
}

func TestRunStopsAllMonitorsOnCancellation(t *testing.T) {
	logSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tree_size": 0}`))
	}))
	defer logSrv.Close()

	listSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"logs": [{"description": "a", "url": "` + logSrv.URL + `/", "state": {"usable": {}}}]}`))
	}))
	defer listSrv.Close()

	cfg := ctconfig.Config{
		CTLogListURL:   listSrv.URL,
		RequestTimeout: time.Second,
		FetchInterval:  2 * time.Millisecond,
		BatchSize:      10,
		CacheMaxSize:   10,
		CacheTTL:       time.Minute,
		MaxRetries:     0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, sink.NewMemorySink()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
