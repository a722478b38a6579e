// Command ctsnapshot polls crt.sh's summary JSON endpoint as an
// alternative to tailing individual CT logs directly, feeding the same
// sink the primary tailer uses.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctsentinel.dev/internal/crtsh"
	"ctsentinel.dev/internal/ctconfig"
	"ctsentinel.dev/internal/sink"
)

func main() {
	crtshURL := flag.String("crtsh-url", "", "Override CRTSH_URL for a local run.")
	flag.Parse()

	cfg, err := ctconfig.Load()
	if err != nil {
		log.Fatalf("ctsnapshot: configuration error: %v", err)
	}

	baseURL := cfg.CrtshURL()
	if *crtshURL != "" {
		baseURL = *crtshURL
	}

	s, err := buildSink(cfg)
	if err != nil {
		log.Fatalf("ctsnapshot: failed to build sink: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := crtsh.NewPoller(baseURL, s)
	poller.Run(ctx, cfg.FetchInterval, time.Now().UTC().Add(-5*time.Minute))
}

func buildSink(cfg ctconfig.Config) (sink.Sink, error) {
	switch cfg.SinkKind {
	case "elasticsearch":
		return sink.NewElasticsearchSink(cfg.ElasticsearchHosts, cfg.ElasticsearchUsername, cfg.ElasticsearchPassword, cfg.ElasticsearchIndex, cfg.RequestTimeout), nil
	case "memory":
		return sink.NewMemorySink(), nil
	default:
		log.Fatalf("ctsnapshot: unsupported SINK_KIND %q for snapshot front-end", cfg.SinkKind)
		return nil, nil
	}
}
