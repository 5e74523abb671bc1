package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// DryRunDeliverer synthesizes receipts without network I/O. FailuresFor
// injects synthetic transient faults per retry seed: the deliverer fails
// that many times before succeeding, which is how tests exercise the retry
// and health paths offline.
type DryRunDeliverer struct {
	MaxChars    int
	FailuresFor map[string]int

	mu        sync.Mutex
	failed    map[string]int
	delivered []OutboundMessage
}

func (d *DryRunDeliverer) Deliver(_ context.Context, msg OutboundMessage) ([]Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if budget := d.FailuresFor[msg.RetrySeed]; budget > 0 {
		if d.failed == nil {
			d.failed = map[string]int{}
		}
		if d.failed[msg.RetrySeed] < budget {
			d.failed[msg.RetrySeed]++
			return nil, fmt.Errorf("synthetic fault for %s: %w", msg.RetrySeed, ErrTransient)
		}
	}

	chunks := ChunkText(msg.Text, d.MaxChars)
	receipts := make([]Receipt, 0, len(chunks))
	for i := range chunks {
		receipts = append(receipts, Receipt{
			ReceiptID:      uuid.NewString(),
			Transport:      msg.Transport,
			ConversationID: msg.ConversationID,
			ChunkIndex:     i,
			Status:         ReceiptSimulated,
		})
	}
	d.delivered = append(d.delivered, msg)
	return receipts, nil
}

// Delivered returns the messages that completed, in order.
func (d *DryRunDeliverer) Delivered() []OutboundMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]OutboundMessage, len(d.delivered))
	copy(out, d.delivered)
	return out
}
