package channelruntime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/njfio/taubot/approvals"
	"github.com/njfio/taubot/internal/statepaths"
)

// FileApprovalsHandler backs the approvals subcommand with the file store,
// so the chat command and the operator CLI share one registry.
type FileApprovalsHandler struct {
	Audit approvals.AuditSink

	now func() time.Time
}

func (h *FileApprovalsHandler) ExecuteApprovals(ctx context.Context, stateDir string, args []string, decisionActor string) (string, error) {
	store, err := approvals.NewFileApprovalStore(
		statepaths.ApprovalsFile(stateDir),
		statepaths.LockRoot(stateDir),
	)
	if err != nil {
		return "", err
	}
	now := time.Now
	if h != nil && h.now != nil {
		now = h.now
	}

	switch args[0] {
	case "list":
		pending, err := store.ListPending(ctx, now())
		if err != nil {
			return "", err
		}
		if len(pending) == 0 {
			return "no pending approvals", nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d pending approval(s):\n", len(pending))
		for _, rec := range pending {
			fmt.Fprintf(&b, "- %s %s %s (expires %s)\n",
				rec.ID, rec.Channel, rec.Action, rec.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case "approve", "reject":
		status := approvals.StatusApproved
		if args[0] == "reject" {
			status = approvals.StatusRejected
		}
		rec, err := store.Resolve(ctx, args[1], status, decisionActor, "")
		if err != nil {
			return "", err
		}
		h.emitAudit(ctx, rec)
		return fmt.Sprintf("approval %s is now %s", rec.ID, rec.Status), nil

	default:
		return "", fmt.Errorf("unknown approvals action: %s", args[0])
	}
}

func (h *FileApprovalsHandler) emitAudit(ctx context.Context, rec approvals.Record) {
	if h == nil || h.Audit == nil {
		return
	}
	_ = h.Audit.Emit(ctx, approvals.AuditEvent{
		ApprovalID: rec.ID,
		Channel:    rec.Channel,
		ActorID:    rec.ActorID,
		Action:     rec.Action,
		Status:     string(rec.Status),
		ResolvedBy: rec.ResolvedBy,
		Comment:    rec.Comment,
	})
}

// StaticAuthStatusHandler reports which providers have credentials
// configured, without ever echoing the credentials themselves.
type StaticAuthStatusHandler struct {
	Configured map[string]bool
}

func (h StaticAuthStatusHandler) ExecuteAuthStatus(ctx context.Context, provider string) (string, error) {
	_ = ctx
	provider = strings.TrimSpace(provider)
	if provider != "" {
		if h.Configured[provider] {
			return fmt.Sprintf("%s: credentials configured", provider), nil
		}
		return fmt.Sprintf("%s: no credentials configured", provider), nil
	}
	configured := 0
	for _, ok := range h.Configured {
		if ok {
			configured++
		}
	}
	return fmt.Sprintf("%d of %d providers have credentials configured", configured, len(h.Configured)), nil
}

// StateDirDoctorHandler checks that the state directory layout is usable.
type StateDirDoctorHandler struct {
	StateDir string
}

func (h StateDirDoctorHandler) ExecuteDoctor(ctx context.Context, online bool) (string, error) {
	_ = ctx
	var checks []string
	if _, err := LoadState(h.StateDir); err != nil {
		checks = append(checks, "state: unreadable")
	} else {
		checks = append(checks, "state: ok")
	}
	if online {
		checks = append(checks, "online checks: skipped (no probe configured)")
	}
	return "doctor: " + strings.Join(checks, "; "), nil
}
