package envelope

import "strings"

// ReplayTracker remembers (channel, nonce) pairs inside the replay window.
// Tracking is independent across channels: the same nonce on two different
// conversations is two distinct entries.
type ReplayTracker struct {
	seen map[string]int64
}

func NewReplayTracker() *ReplayTracker {
	return &ReplayTracker{seen: map[string]int64{}}
}

// Observe records the (channel, nonce) pair and reports whether it was
// fresh. A pair already seen within windowMS is a replay; entries older
// than the window are pruned on the way through.
func (t *ReplayTracker) Observe(channel, nonce string, nowMS, windowMS int64) bool {
	if t == nil {
		return true
	}
	key := replayKey(channel, nonce)

	cutoff := nowMS - windowMS
	for k, ts := range t.seen {
		if ts <= cutoff {
			delete(t.seen, k)
		}
	}

	if _, dup := t.seen[key]; dup {
		return false
	}
	t.seen[key] = nowMS
	return true
}

// Snapshot exports the live entries for persistence across invocations.
func (t *ReplayTracker) Snapshot() map[string]int64 {
	if t == nil || len(t.seen) == 0 {
		return nil
	}
	out := make(map[string]int64, len(t.seen))
	for k, v := range t.seen {
		out[k] = v
	}
	return out
}

// Restore loads a snapshot persisted by a previous invocation.
func (t *ReplayTracker) Restore(entries map[string]int64) {
	if t == nil {
		return
	}
	for k, v := range entries {
		t.seen[k] = v
	}
}

func replayKey(channel, nonce string) string {
	return strings.TrimSpace(channel) + "\x00" + strings.TrimSpace(nonce)
}
