package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/njfio/taubot/approvals"
	"github.com/njfio/taubot/internal/statepaths"
)

func newApprovalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Inspect and resolve pending approvals",
	}
	cmd.AddCommand(newApprovalsListCmd())
	cmd.AddCommand(newApprovalsResolveCmd("approve", approvals.StatusApproved))
	cmd.AddCommand(newApprovalsResolveCmd("reject", approvals.StatusRejected))
	return cmd
}

func approvalStoreFromViper() (*approvals.FileApprovalStore, string, error) {
	stateDir, err := stateDirFromViper()
	if err != nil {
		return nil, "", err
	}
	store, err := approvals.NewFileApprovalStore(
		statepaths.ApprovalsFile(stateDir),
		statepaths.LockRoot(stateDir),
	)
	if err != nil {
		return nil, "", err
	}
	return store, stateDir, nil
}

func newApprovalsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := approvalStoreFromViper()
			if err != nil {
				return err
			}
			pending, err := store.ListPending(context.Background(), time.Now())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no pending approvals")
				return nil
			}
			for _, rec := range pending {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  expires %s\n",
					rec.ID, rec.Channel, rec.Action, rec.ExpiresAt.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newApprovalsResolveCmd(use string, status approvals.Status) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: capitalize(use) + " a pending approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, stateDir, err := approvalStoreFromViper()
			if err != nil {
				return err
			}
			actor, _ := cmd.Flags().GetString("actor")
			comment, _ := cmd.Flags().GetString("comment")
			rec, err := store.Resolve(context.Background(), args[0], status, actor, comment)
			if err != nil {
				return err
			}

			sink, err := approvals.NewJSONLAuditSink(
				statepaths.ApprovalsAuditLog(stateDir), 0, statepaths.LockRoot(stateDir))
			if err != nil {
				return err
			}
			defer sink.Close()
			if err := sink.Emit(context.Background(), approvals.AuditEvent{
				ApprovalID: rec.ID,
				Channel:    rec.Channel,
				ActorID:    rec.ActorID,
				Action:     rec.Action,
				Status:     string(rec.Status),
				ResolvedBy: rec.ResolvedBy,
				Comment:    rec.Comment,
			}); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "approval %s is now %s\n", rec.ID, rec.Status)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "Who resolved the approval.")
	cmd.Flags().String("comment", "", "Optional resolution comment.")
	return cmd
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}
