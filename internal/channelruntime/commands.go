package channelruntime

import (
	"context"
	"strings"
)

// Reason codes for command dispatch. Commands pass the same authorization
// gate as content messages; they are never exempt.
const (
	ReasonCommandRBACDenied  = "command_rbac_denied"
	ReasonCommandUnknown     = "command_unknown"
	ReasonCommandInvalidArgs = "command_invalid_args"
	ReasonCommandAuthStatus  = "command_auth_status_ok"
	ReasonCommandDoctor      = "command_doctor_ok"
	ReasonCommandApprovals   = "command_approvals_ok"
	ReasonCommandFailed      = "command_failed"
)

const commandPrefix = "/tau"

// AuthStatusHandler reports provider credential status.
type AuthStatusHandler interface {
	ExecuteAuthStatus(ctx context.Context, provider string) (string, error)
}

// DoctorHandler runs environment diagnostics.
type DoctorHandler interface {
	ExecuteDoctor(ctx context.Context, online bool) (string, error)
}

// ApprovalsHandler serves the approvals subcommand against the shared
// state dir.
type ApprovalsHandler interface {
	ExecuteApprovals(ctx context.Context, stateDir string, args []string, decisionActor string) (string, error)
}

type CommandHandlers struct {
	AuthStatus AuthStatusHandler
	Doctor     DoctorHandler
	Approvals  ApprovalsHandler
}

// IsCommand reports whether the text is a slash command for this runtime.
func IsCommand(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == commandPrefix || strings.HasPrefix(trimmed, commandPrefix+" ")
}

type CommandResult struct {
	Reply      string
	ReasonCode string
}

// DispatchCommand parses "/tau <subcommand> [args...]" and delegates to the
// injected handlers. The caller has already passed the authorization gate.
func DispatchCommand(ctx context.Context, handlers CommandHandlers, stateDir, text, decisionActor string) CommandResult {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return CommandResult{
			Reply:      "usage: /tau <status|doctor|approvals> [args]",
			ReasonCode: ReasonCommandInvalidArgs,
		}
	}

	args := fields[2:]
	switch fields[1] {
	case "status":
		if handlers.AuthStatus == nil {
			return CommandResult{Reply: "status is not available", ReasonCode: ReasonCommandUnknown}
		}
		provider := ""
		if len(args) > 0 {
			provider = args[0]
		}
		reply, err := handlers.AuthStatus.ExecuteAuthStatus(ctx, provider)
		if err != nil {
			return CommandResult{Reply: "status check failed", ReasonCode: ReasonCommandFailed}
		}
		return CommandResult{Reply: reply, ReasonCode: ReasonCommandAuthStatus}

	case "doctor":
		if handlers.Doctor == nil {
			return CommandResult{Reply: "doctor is not available", ReasonCode: ReasonCommandUnknown}
		}
		online := false
		for _, a := range args {
			if a == "--online" {
				online = true
			}
		}
		reply, err := handlers.Doctor.ExecuteDoctor(ctx, online)
		if err != nil {
			return CommandResult{Reply: "diagnostics failed", ReasonCode: ReasonCommandFailed}
		}
		return CommandResult{Reply: reply, ReasonCode: ReasonCommandDoctor}

	case "approvals":
		if len(args) == 0 {
			return CommandResult{
				Reply:      "usage: /tau approvals <list|approve|reject> [id]",
				ReasonCode: ReasonCommandInvalidArgs,
			}
		}
		switch args[0] {
		case "list":
		case "approve", "reject":
			if len(args) < 2 {
				return CommandResult{
					Reply:      "usage: /tau approvals " + args[0] + " <id>",
					ReasonCode: ReasonCommandInvalidArgs,
				}
			}
		default:
			return CommandResult{
				Reply:      "unknown approvals action: " + args[0],
				ReasonCode: ReasonCommandInvalidArgs,
			}
		}
		if handlers.Approvals == nil {
			return CommandResult{Reply: "approvals are not available", ReasonCode: ReasonCommandUnknown}
		}
		reply, err := handlers.Approvals.ExecuteApprovals(ctx, stateDir, args, decisionActor)
		if err != nil {
			return CommandResult{Reply: "approvals command failed", ReasonCode: ReasonCommandFailed}
		}
		return CommandResult{Reply: reply, ReasonCode: ReasonCommandApprovals}

	default:
		return CommandResult{
			Reply:      "unknown command: " + fields[1],
			ReasonCode: ReasonCommandUnknown,
		}
	}
}
