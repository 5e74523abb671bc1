package pairing

import "strings"

// ChannelKeyCandidates returns the lookup keys for a channel in decreasing
// specificity: the exact "<transport>:<conversation>" key, the transport
// wildcard, then the global wildcard.
func ChannelKeyCandidates(channel string) []string {
	channel = strings.TrimSpace(channel)
	candidates := make([]string, 0, 3)
	if channel != "" && channel != "*" {
		candidates = append(candidates, channel)
		if i := strings.IndexByte(channel, ':'); i > 0 {
			candidates = append(candidates, channel[:i])
		}
	}
	return append(candidates, "*")
}
