// Package ctmonitor implements the per-log polling state machine that
// tails one CT log and emits normalized certificate records.
package ctmonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ctsentinel.dev/internal/ctfetch"
	"ctsentinel.dev/internal/ctleaf"
	"ctsentinel.dev/internal/ctnorm"
	"ctsentinel.dev/internal/seencache"
	"ctsentinel.dev/internal/sink"
)

// State names the Monitor's position in its state machine, exposed for
// tests and observability rather than driven by an external caller.
type State int

const (
	StateInit State = iota
	StateAnchored
	StatePolling
	StateFetching
	StateEmitting
	StateStopped
)

// Config bundles the per-log parameters a Monitor needs, independent of
// which log it is tailing.
type Config struct {
	LogURL        string
	LogName       string
	FetchInterval time.Duration
	BatchSize     int64
}

// Monitor tails one CT log: get-sth → get-entries → decode → normalize →
// batch. next_index is owned solely by the Monitor's own goroutine.
type Monitor struct {
	cfg        Config
	fetcher    *ctfetch.Fetcher
	seen       *seencache.Cache
	batcher    *sink.Batcher
	normalizer ctnorm.Normalizer

	state     State
	nextIndex int64
}

// New returns a Monitor ready to Run.
func New(cfg Config, fetcher *ctfetch.Fetcher, seen *seencache.Cache, batcher *sink.Batcher) *Monitor {
	return &Monitor{
		cfg:        cfg,
		fetcher:    fetcher,
		seen:       seen,
		batcher:    batcher,
		normalizer: ctnorm.Normalizer{LogURL: cfg.LogURL, LogName: cfg.LogName},
		state:      StateInit,
	}
}

// State reports the Monitor's current state; intended for tests.
func (m *Monitor) State() State {
	return m.state
}

// NextIndex reports the next log index the Monitor will fetch.
func (m *Monitor) NextIndex() int64 {
	return m.nextIndex
}

type sthResponse struct {
	TreeSize int64 `json:"tree_size"`
}

type entriesResponse struct {
	Entries []struct {
		LeafInput string `json:"leaf_input"`
		ExtraData string `json:"extra_data"`
	} `json:"entries"`
}

// Run drives the state machine until ctx is canceled. It always flushes
// the batcher's residual buffer before returning, per spec.md §5's
// shutdown contract. The final flush runs on a context detached from ctx's
// cancellation, so a shutdown does not abort the last bulk request.
func (m *Monitor) Run(ctx context.Context) {
	defer m.batcher.Flush(context.WithoutCancel(ctx))

	if !m.anchor(ctx) {
		m.state = StateStopped
		return
	}
	m.state = StatePolling

	firstPoll := true
	for {
		if ctx.Err() != nil {
			m.state = StateStopped
			return
		}

		if !firstPoll {
			if !m.sleepInterval(ctx) {
				m.state = StateStopped
				return
			}
		}
		firstPoll = false

		currentSize, ok := m.pollTreeSize(ctx)
		if !ok {
			currentSize = m.nextIndex
		}

		if currentSize < m.nextIndex {
			log.Printf("ctmonitor: %s: tree_size shrank from %d to %d, resetting", m.cfg.LogName, m.nextIndex, currentSize)
			m.nextIndex = currentSize
			continue
		}
		if currentSize == m.nextIndex {
			continue
		}

		start := m.nextIndex
		end := min64(currentSize-1, start+m.cfg.BatchSize-1)
		m.state = StateFetching
		for start <= end {
			if ctx.Err() != nil {
				m.state = StateStopped
				return
			}
			start, end = m.fetchAndEmit(ctx, start, end, currentSize)
		}
		m.state = StatePolling
	}
}

func (m *Monitor) anchor(ctx context.Context) bool {
	sth, ok := m.getSTH(ctx)
	if !ok {
		log.Printf("ctmonitor: %s: failed to anchor, abandoning log", m.cfg.LogName)
		return false
	}
	m.nextIndex = sth.TreeSize
	m.state = StateAnchored
	return true
}

func (m *Monitor) pollTreeSize(ctx context.Context) (int64, bool) {
	sth, ok := m.getSTH(ctx)
	if !ok {
		return 0, false
	}
	return sth.TreeSize, true
}

func (m *Monitor) getSTH(ctx context.Context) (sthResponse, bool) {
	body, err := m.fetcher.Get(ctx, m.cfg.LogURL+"ct/v1/get-sth")
	if err != nil || body == nil {
		return sthResponse{}, false
	}
	var sth sthResponse
	if err := json.Unmarshal(body, &sth); err != nil {
		log.Printf("ctmonitor: %s: malformed get-sth response: %v", m.cfg.LogName, err)
		return sthResponse{}, false
	}
	return sth, true
}

// fetchAndEmit fetches [start, end], normalizes and batches every entry it
// can, and returns the next window to fetch within the poll cycle.
func (m *Monitor) fetchAndEmit(ctx context.Context, start, end, currentSize int64) (nextStart, nextEnd int64) {
	url := fmt.Sprintf("%sct/v1/get-entries?start=%d&end=%d", m.cfg.LogURL, start, end)
	body, err := m.fetcher.Get(ctx, url)

	if err != nil || body == nil {
		m.nextIndex = end + 1
		nextStart = end + 1
		nextEnd = min64(currentSize-1, nextStart+m.cfg.BatchSize-1)
		return nextStart, nextEnd
	}

	var resp entriesResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Entries) == 0 {
		m.nextIndex = end + 1
		nextStart = end + 1
		nextEnd = min64(currentSize-1, nextStart+m.cfg.BatchSize-1)
		return nextStart, nextEnd
	}

	m.state = StateEmitting
	now := time.Now().UTC()
	for i, e := range resp.Entries {
		idx := start + int64(i)
		leaf, err := ctleaf.DecodeEntry(e.LeafInput, e.ExtraData)
		if err != nil {
			log.Printf("ctmonitor: %s: skipping entry %d: %v", m.cfg.LogName, idx, err)
			continue
		}
		rec, err := m.normalizer.Normalize(leaf, idx, now)
		if err != nil {
			log.Printf("ctmonitor: %s: skipping entry %d: %v", m.cfg.LogName, idx, err)
			continue
		}
		if m.seen.CheckAndInsert(rec.Fingerprint) {
			continue
		}
		m.batcher.Add(ctx, rec)
	}

	m.nextIndex = end + 1
	nextStart = end + 1
	nextEnd = min64(currentSize-1, nextStart+m.cfg.BatchSize-1)
	return nextStart, nextEnd
}

func (m *Monitor) sleepInterval(ctx context.Context) bool {
	t := time.NewTimer(m.cfg.FetchInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
