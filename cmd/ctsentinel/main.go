// Command ctsentinel tails every usable CT log in the master log list and
// streams normalized certificate records into the configured sink.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"ctsentinel.dev/internal/ctconfig"
	"ctsentinel.dev/internal/ctsupervisor"
	"ctsentinel.dev/internal/objectstore"
	"ctsentinel.dev/internal/sink"
	"ctsentinel.dev/internal/telemetry"
)

func main() {
	logListURL := flag.String("log-list-url", "", "Override CT_LOG_LIST_URL for a local run.")
	flag.Parse()

	cfg, err := ctconfig.Load()
	if err != nil {
		log.Fatalf("ctsentinel: configuration error: %v", err)
	}
	if *logListURL != "" {
		cfg.CTLogListURL = *logListURL
	}

	shutdownTelemetry := telemetry.Configure(cfg.OTLPEndpoint)
	defer shutdownTelemetry()

	s, err := buildSink(cfg)
	if err != nil {
		log.Fatalf("ctsentinel: failed to build sink: %v", err)
	}

	ctx := context.Background()
	if err := ctsupervisor.Run(ctx, cfg, s); err != nil {
		log.Fatalf("ctsentinel: %v", err)
	}
}

func buildSink(cfg ctconfig.Config) (sink.Sink, error) {
	switch cfg.SinkKind {
	case "elasticsearch":
		es := sink.NewElasticsearchSink(cfg.ElasticsearchHosts, cfg.ElasticsearchUsername, cfg.ElasticsearchPassword, cfg.ElasticsearchIndex, cfg.RequestTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := es.EnsureIndexTemplate(ctx); err != nil {
			log.Fatalf("ctsentinel: could not ensure index template: %v", err)
		}
		return es, nil
	case "s3":
		storage := objectstore.NewS3Storage(cfg.S3Region, cfg.S3Bucket, cfg.S3EndpointURL, "", "")
		return sink.NewS3ArchiveSink(&storage, "ct-archive"), nil
	case "memory":
		return sink.NewMemorySink(), nil
	default:
		log.Fatalf("ctsentinel: unknown SINK_KIND %q", cfg.SinkKind)
		return nil, nil
	}
}
