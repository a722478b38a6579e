// Package ctdir loads and filters the master CT log list so the
// Supervisor knows which logs to spawn monitors for.
package ctdir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// LogDescriptor is one entry from the master log list.
type LogDescriptor struct {
	Description      string          `json:"description"`
	URL              string          `json:"url"`
	State            map[string]any  `json:"state"`
	TemporalInterval json.RawMessage `json:"temporal_interval,omitempty"`
}

// TemporalInterval bounds when a log is considered current.
type TemporalInterval struct {
	StartInclusive time.Time `json:"start_inclusive"`
	EndExclusive   time.Time `json:"end_exclusive"`
}

type logList struct {
	Logs      []LogDescriptor `json:"logs"`
	Operators []operator      `json:"operators"`
}

type operator struct {
	Logs []LogDescriptor `json:"logs"`
}

// Load fetches url and returns every descriptor that is usable and, if it
// declares a temporal interval, currently within it. It never returns an
// error to the caller: a fetch or parse failure is logged and yields an
// empty list, matching spec.md §4.B's "no exception escapes" contract.
func Load(ctx context.Context, client *http.Client, url string) []LogDescriptor {
	descriptors, err := fetchAndFlatten(ctx, client, url)
	if err != nil {
		log.Printf("ctdir: failed to load log list from %s: %v", url, err)
		return nil
	}

	now := time.Now().UTC()
	var out []LogDescriptor
	for _, d := range descriptors {
		if isUsable(d) && inTemporalWindow(d, now) {
			out = append(out, d)
		}
	}
	return out
}

func fetchAndFlatten(ctx context.Context, client *http.Client, url string) ([]LogDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
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

	var list logList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unmarshal log list: %w", err)
	}

	descriptors := list.Logs
	for _, op := range list.Operators {
		descriptors = append(descriptors, op.Logs...)
	}
	return descriptors, nil
}

func isUsable(d LogDescriptor) bool {
	_, ok := d.State["usable"]
	return ok
}

func inTemporalWindow(d LogDescriptor, now time.Time) bool {
	if len(d.TemporalInterval) == 0 {
		return true
	}
	var interval TemporalInterval
	if err := json.Unmarshal(d.TemporalInterval, &interval); err != nil {
		log.Printf("ctdir: %s: unparseable temporal_interval, keeping descriptor: %v", d.Description, err)
		return true
	}
	return !now.Before(interval.StartInclusive) && now.Before(interval.EndExclusive)
}
