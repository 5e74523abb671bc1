package ingest

// QueueResult is the outcome of the dedup + queue-limit stage.
type QueueResult struct {
	Admitted  []InboundEvent
	Duplicate int
	Overflow  int
}

// BuildQueue drops events whose dedup key is already processed, then
// truncates to limit preserving source order. Overflow events are not
// marked processed anywhere, so they stay eligible for a later cycle.
func BuildQueue(events []InboundEvent, processed func(key string) bool, limit int) QueueResult {
	var res QueueResult
	for _, ev := range events {
		if processed != nil && processed(ev.DedupKey()) {
			res.Duplicate++
			continue
		}
		if limit > 0 && len(res.Admitted) >= limit {
			res.Overflow++
			continue
		}
		res.Admitted = append(res.Admitted, ev)
	}
	return res
}
