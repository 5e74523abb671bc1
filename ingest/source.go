package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/njfio/taubot/internal/fsstore"
	"github.com/njfio/taubot/internal/schemaver"
)

var fixturePolicy = schemaver.Policy{Format: "ingress_fixture", Min: 1, Max: 1}

// SourceStats counts what a source saw besides the events it yielded.
type SourceStats struct {
	MalformedLines    int
	TransportMismatch int
	SchemaRejected    int
}

// Source yields a bounded, ordered batch of inbound events for one cycle.
type Source interface {
	Collect(logger *slog.Logger) ([]InboundEvent, SourceStats, error)
}

type fixtureFile struct {
	SchemaVersion int            `json:"schema_version"`
	Name          string         `json:"name"`
	Events        []InboundEvent `json:"events"`
}

// FixtureSource reads a single JSON fixture file.
type FixtureSource struct {
	Path string
}

func (s FixtureSource) Collect(logger *slog.Logger) ([]InboundEvent, SourceStats, error) {
	var stats SourceStats
	var fixture fixtureFile
	ok, err := fsstore.ReadJSON(s.Path, &fixture)
	if err != nil {
		return nil, stats, fmt.Errorf("read fixture: %w", err)
	}
	if !ok {
		return nil, stats, fmt.Errorf("fixture not found: %s", s.Path)
	}
	if _, err := fixturePolicy.Check(fixture.SchemaVersion); err != nil {
		return nil, stats, err
	}

	events := make([]InboundEvent, 0, len(fixture.Events))
	for _, ev := range fixture.Events {
		if err := ev.Validate(); err != nil {
			stats.MalformedLines++
			if logger != nil {
				logger.Warn("ingress_event_skipped", "source", "fixture", "error", err.Error())
			}
			continue
		}
		events = append(events, ev)
	}
	return events, stats, nil
}

// DirSource scans `<transport>.ndjson` files under an ingress directory,
// one JSON event per line. Malformed or transport-mismatched lines are
// skipped and counted, never fatal; only an unreadable file aborts.
type DirSource struct {
	Dir string
}

func (s DirSource) Collect(logger *slog.Logger) ([]InboundEvent, SourceStats, error) {
	var stats SourceStats
	var events []InboundEvent

	for _, transport := range AllTransports() {
		path := filepath.Join(s.Dir, string(transport)+".ndjson")
		lines, ok, err := fsstore.ReadLines(path)
		if err != nil {
			return nil, stats, fmt.Errorf("read ingress %s: %w", path, err)
		}
		if !ok {
			continue
		}
		for _, line := range lines {
			var ev InboundEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				stats.MalformedLines++
				if logger != nil {
					logger.Warn("ingress_line_skipped", "transport", string(transport), "reason", "malformed")
				}
				continue
			}
			if err := ev.Validate(); err != nil {
				stats.MalformedLines++
				if logger != nil {
					logger.Warn("ingress_line_skipped", "transport", string(transport), "reason", err.Error())
				}
				continue
			}
			if ev.Transport != transport {
				stats.TransportMismatch++
				if logger != nil {
					logger.Warn("ingress_line_skipped", "transport", string(transport), "reason", "transport_mismatch", "line_transport", string(ev.Transport))
				}
				continue
			}
			events = append(events, ev)
		}
	}
	return events, stats, nil
}
