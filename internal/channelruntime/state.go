package channelruntime

import (
	"fmt"

	"github.com/njfio/taubot/internal/fsstore"
	"github.com/njfio/taubot/internal/schemaver"
	"github.com/njfio/taubot/internal/statepaths"
)

var statePolicy = schemaver.Policy{Format: "runtime_state", Min: 1, Max: 1}

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthFailing  = "failing"
)

type Health struct {
	LastCycleDiscovered int `json:"last_cycle_discovered"`
	LastCycleCompleted  int `json:"last_cycle_completed"`
	LastCycleFailed     int `json:"last_cycle_failed"`
	FailureStreak       int `json:"failure_streak"`
}

// ClassifyHealth maps the failure streak to a health state.
func ClassifyHealth(streak int) string {
	switch {
	case streak <= 0:
		return HealthHealthy
	case streak <= 2:
		return HealthDegraded
	default:
		return HealthFailing
	}
}

type Telemetry struct {
	TypingEvents    map[string]int64 `json:"typing_events,omitempty"`
	PresenceEvents  map[string]int64 `json:"presence_events,omitempty"`
	UsageEvents     int64            `json:"usage_events,omitempty"`
	UsageCostMicros int64            `json:"usage_cost_micros,omitempty"`
}

// RuntimeState is the only document the runtime mutates across cycles. It is
// written once, atomically, at cycle end.
type RuntimeState struct {
	SchemaVersion      int              `json:"schema_version"`
	ProcessedEventKeys []string         `json:"processed_event_keys,omitempty"`
	Health             Health           `json:"health"`
	Telemetry          Telemetry        `json:"telemetry"`
	ReplaySeen         map[string]int64 `json:"replay_seen,omitempty"`

	processed map[string]bool
}

func (s *RuntimeState) init() {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = 1
	}
	s.processed = make(map[string]bool, len(s.ProcessedEventKeys))
	for _, key := range s.ProcessedEventKeys {
		s.processed[key] = true
	}
	if s.Telemetry.TypingEvents == nil {
		s.Telemetry.TypingEvents = map[string]int64{}
	}
	if s.Telemetry.PresenceEvents == nil {
		s.Telemetry.PresenceEvents = map[string]int64{}
	}
}

func (s *RuntimeState) IsProcessed(key string) bool {
	return s.processed[key]
}

// MarkProcessed records a completed dedup key, evicting oldest-first once
// the cap is exceeded. An evicted key may be reprocessed later; the
// guarantee is at-least-once beyond the cap horizon.
func (s *RuntimeState) MarkProcessed(key string, limit int) {
	if key == "" || s.processed[key] {
		return
	}
	s.ProcessedEventKeys = append(s.ProcessedEventKeys, key)
	s.processed[key] = true
	if limit <= 0 {
		return
	}
	for len(s.ProcessedEventKeys) > limit {
		evicted := s.ProcessedEventKeys[0]
		s.ProcessedEventKeys = s.ProcessedEventKeys[1:]
		delete(s.processed, evicted)
	}
}

// LoadState reads state.json from the state dir; a missing file yields a
// fresh state. Unreadable or unsupported state is fatal for the cycle.
func LoadState(stateDir string) (*RuntimeState, error) {
	var state RuntimeState
	path := statepaths.StateFile(stateDir)
	ok, err := fsstore.ReadJSON(path, &state)
	if err != nil {
		return nil, fmt.Errorf("load runtime state: %w", err)
	}
	if ok {
		if _, err := statePolicy.Check(state.SchemaVersion); err != nil {
			return nil, fmt.Errorf("load runtime state: %w", err)
		}
	}
	state.init()
	return &state, nil
}

func SaveState(stateDir string, state *RuntimeState) error {
	if state.SchemaVersion == 0 {
		state.SchemaVersion = 1
	}
	if err := fsstore.WriteJSONAtomic(statepaths.StateFile(stateDir), state, fsstore.FileOptions{}); err != nil {
		return fmt.Errorf("save runtime state: %w", err)
	}
	return nil
}
