// Package approvals holds the pending-action registry behind gated commands.
// A request is created pending, expires after a short window, and is resolved
// exactly once to approved or rejected.
package approvals

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

const DefaultTTL = 5 * time.Minute

type Record struct {
	ID         string     `json:"id"`
	Channel    string     `json:"channel"`
	ActorID    string     `json:"actor_id"`
	Action     string     `json:"action"`
	Summary    string     `json:"summary,omitempty"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	Comment    string     `json:"comment,omitempty"`
}

// Effective reports the record status with expiry applied. A pending record
// past its deadline reads as expired without a state write.
func (r Record) Effective(now time.Time) Status {
	if r.Status == StatusPending && !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

type Store interface {
	Create(ctx context.Context, rec Record) (string, error)
	Get(ctx context.Context, id string) (Record, bool, error)
	Resolve(ctx context.Context, id string, status Status, actor, comment string) (Record, error)
	ListPending(ctx context.Context, now time.Time) ([]Record, error)
}

var (
	ErrNotFound     = errors.New("approval not found")
	ErrNotPending   = errors.New("approval is not pending")
	ErrExpired      = errors.New("approval expired")
	ErrBadStatus    = errors.New("invalid resolution status")
	ErrMissingField = errors.New("missing required field")
)

func newApprovalID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "apr_" + hex.EncodeToString(b)
}

func validateCreate(rec Record) error {
	if strings.TrimSpace(rec.Channel) == "" {
		return fmt.Errorf("%w: channel", ErrMissingField)
	}
	if strings.TrimSpace(rec.Action) == "" {
		return fmt.Errorf("%w: action", ErrMissingField)
	}
	return nil
}

func sortByCreated(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
