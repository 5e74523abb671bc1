package channelruntime

import (
	"math"

	"github.com/njfio/taubot/ingest"
)

// TypingLifecycle is the four-event sequence emitted per qualifying reply.
var TypingLifecycle = []string{
	"typing_started",
	"typing_stopped",
	"presence_active",
	"presence_idle",
}

const metadataForceTyping = "typing_presence_force"

// ShouldEmitTyping gates the typing/presence lifecycle on reply length,
// unless the event carries the force flag in its metadata.
func ShouldEmitTyping(ev ingest.InboundEvent, replyChars, minResponseChars int) bool {
	if ev.MetadataBool(metadataForceTyping) {
		return true
	}
	if minResponseChars <= 0 {
		return true
	}
	return replyChars >= minResponseChars
}

func (t *Telemetry) recordTypingLifecycle(transport ingest.Transport) {
	key := string(transport)
	// Half the lifecycle is typing, half is presence.
	t.TypingEvents[key] += 2
	t.PresenceEvents[key] += 2
}

// UsageCostMicros extracts the usage cost from event metadata.
// usage_cost_micros wins over usage_cost_usd when both are present; the
// micros field is the exact representation.
func UsageCostMicros(metadata map[string]any) (int64, bool) {
	if metadata == nil {
		return 0, false
	}
	if raw, ok := metadata["usage_cost_micros"]; ok {
		if micros, ok := asInt64(raw); ok {
			return micros, true
		}
	}
	if raw, ok := metadata["usage_cost_usd"]; ok {
		if usd, ok := asFloat64(raw); ok {
			return int64(math.Round(usd * 1_000_000)), true
		}
	}
	return 0, false
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func asFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
