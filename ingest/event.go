// Package ingest defines the inbound event model and the sources that
// produce events for a runtime cycle: a pre-parsed fixture file or a
// directory of per-transport NDJSON ingress files.
package ingest

import (
	"fmt"
	"strings"
)

type Transport string

const (
	TransportTelegram Transport = "telegram"
	TransportDiscord  Transport = "discord"
	TransportWhatsApp Transport = "whatsapp"
)

func AllTransports() []Transport {
	return []Transport{TransportTelegram, TransportDiscord, TransportWhatsApp}
}

func ParseTransport(raw string) (Transport, error) {
	switch Transport(strings.ToLower(strings.TrimSpace(raw))) {
	case TransportTelegram:
		return TransportTelegram, nil
	case TransportDiscord:
		return TransportDiscord, nil
	case TransportWhatsApp:
		return TransportWhatsApp, nil
	default:
		return "", fmt.Errorf("unknown transport: %q", raw)
	}
}

type Attachment struct {
	AttachmentID string `json:"attachment_id"`
	URL          string `json:"url"`
	ContentType  string `json:"content_type"`
	FileName     string `json:"file_name,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

// InboundEvent is immutable once read from a source.
type InboundEvent struct {
	SchemaVersion  int            `json:"schema_version"`
	Transport      Transport      `json:"transport"`
	EventKind      string         `json:"event_kind"`
	EventID        string         `json:"event_id"`
	ConversationID string         `json:"conversation_id"`
	ThreadID       string         `json:"thread_id,omitempty"`
	ActorID        string         `json:"actor_id"`
	ActorDisplay   string         `json:"actor_display,omitempty"`
	TimestampMS    int64          `json:"timestamp_ms"`
	Text           string         `json:"text"`
	Attachments    []Attachment   `json:"attachments,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// DedupKey is the identity used for processed-key tracking.
func (e InboundEvent) DedupKey() string {
	return string(e.Transport) + ":" + strings.TrimSpace(e.EventID)
}

// ChannelKey is the policy-addressable key for this event's conversation.
func (e InboundEvent) ChannelKey() string {
	return string(e.Transport) + ":" + strings.TrimSpace(e.ConversationID)
}

// IsGroup reports whether the event happened in a group conversation.
// Transports mark this in metadata; absent marker means direct message.
func (e InboundEvent) IsGroup() bool {
	v, ok := e.Metadata["chat_type"]
	if !ok {
		return false
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "group", "supergroup", "channel":
		return true
	default:
		return false
	}
}

// MentionsBot reports whether the event carries the transport's mention
// marker for the bot.
func (e InboundEvent) MentionsBot() bool {
	v, ok := e.Metadata["mentions_bot"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// MetadataString returns a trimmed string metadata value.
func (e InboundEvent) MetadataString(key string) string {
	v, ok := e.Metadata[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// MetadataBool returns a bool metadata value; absent or mistyped is false.
func (e InboundEvent) MetadataBool(key string) bool {
	v, ok := e.Metadata[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (e InboundEvent) Validate() error {
	if _, err := ParseTransport(string(e.Transport)); err != nil {
		return err
	}
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("event_id is required")
	}
	if strings.TrimSpace(e.ConversationID) == "" {
		return fmt.Errorf("conversation_id is required")
	}
	return nil
}
