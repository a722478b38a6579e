// Package ctsupervisor loads the log directory, spawns one Monitor per
// log, and owns the shutdown signal shared across all of them.
package ctsupervisor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"ctsentinel.dev/internal/ctconfig"
	"ctsentinel.dev/internal/ctdir"
	"ctsentinel.dev/internal/ctfetch"
	"ctsentinel.dev/internal/ctmonitor"
	"ctsentinel.dev/internal/seencache"
	"ctsentinel.dev/internal/sink"
)

// Run loads the log directory, starts one Monitor per usable log sharing
// s and the seen-cache, and blocks until every Monitor returns. It
// returns an error only for the fatal startup conditions spec.md §4.H
// names (empty log list); individual Monitor failures never propagate,
// since the Supervisor ignores them by design (one log's failure must
// not cancel the others).
func Run(ctx context.Context, cfg ctconfig.Config, s sink.Sink) error {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	logs := ctdir.Load(ctx, httpClient, cfg.CTLogListURL)
	if len(logs) == 0 {
		return fmt.Errorf("ctsupervisor: no usable logs found at %s", cfg.CTLogListURL)
	}
	log.Printf("ctsupervisor: starting %d monitors", len(logs))

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	seen := seencache.New(cfg.CacheMaxSize, cfg.CacheTTL)

	g, gctx := errgroup.WithContext(stopCtx)
	for _, descriptor := range logs {
		descriptor := descriptor
		fetcher := ctfetch.New(cfg.RequestTimeout, cfg.MaxRetries)
		batcher := sink.NewBatcher(s, cfg.BatchSize)
		monitorCfg := ctmonitor.Config{
			LogURL:        descriptor.URL,
			LogName:       descriptor.Description,
			FetchInterval: cfg.FetchInterval,
			BatchSize:     int64(cfg.BatchSize),
		}
		m := ctmonitor.New(monitorCfg, fetcher, seen, batcher)

		// Each worker always returns nil: a single log's internal failures
		// are logged by the Monitor itself and must never cancel siblings
		// via errgroup's derived context.
		g.Go(func() error {
			m.Run(gctx)
			return nil
		})
	}

	return g.Wait()
}
