package delivery

import (
	"context"

	"github.com/njfio/taubot/ingest"
)

// OutboundMessage is one reply to push through a transport.
type OutboundMessage struct {
	Transport      ingest.Transport
	ConversationID string
	ThreadID       string
	Text           string

	// RetrySeed is a stable per-event string so backoff jitter reproduces
	// across invocations of the same event.
	RetrySeed string
}

type ReceiptStatus string

const (
	ReceiptSent      ReceiptStatus = "sent"
	ReceiptSimulated ReceiptStatus = "simulated"
)

// Receipt records one delivered chunk.
type Receipt struct {
	ReceiptID      string           `json:"receipt_id"`
	Transport      ingest.Transport `json:"transport"`
	ConversationID string           `json:"conversation_id"`
	ChunkIndex     int              `json:"chunk_index"`
	Status         ReceiptStatus    `json:"status"`
}

// Deliverer pushes one outbound message; implementations wrap transient
// faults in ErrTransient so the retry layer can tell them apart.
type Deliverer interface {
	Deliver(ctx context.Context, msg OutboundMessage) ([]Receipt, error)
}

// ChunkText splits a reply into maxChars-sized pieces, preserving order.
// Zero or negative maxChars means no chunking.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return []string{text}
	}
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
