// Package statepaths resolves the well-known files inside a taubot state
// directory. Single-writer assumption: one runtime instance owns a state
// directory at a time; concurrent instances against the same directory are
// not supported.
package statepaths

import "path/filepath"

const (
	StateFilename       = "state.json"
	EventsLogFilename   = "events.jsonl"
	RouteTracesFilename = "route_traces.jsonl"
	AllowlistFilename   = "allowlist.json"
	PairingsFilename    = "pairings.json"
	TrustRootsFilename  = "trust_roots.json"
	LockDirName         = ".fslocks"
	IngressDirName      = "ingress"
	ChannelStoreDirName = "channels"
	ApprovalsFilename   = "approvals.json"
	ApprovalsAuditName  = "approvals_audit.jsonl"
	ChannelPolicyName   = "channel_policy.json"
	RouteBindingsName   = "route_bindings.json"
	RouteTableFilename  = "route_table.json"
)

func StateFile(stateDir string) string {
	return filepath.Join(stateDir, StateFilename)
}

func EventsLog(stateDir string) string {
	return filepath.Join(stateDir, EventsLogFilename)
}

func RouteTracesLog(stateDir string) string {
	return filepath.Join(stateDir, RouteTracesFilename)
}

func AllowlistFile(stateDir string) string {
	return filepath.Join(stateDir, AllowlistFilename)
}

func PairingsFile(stateDir string) string {
	return filepath.Join(stateDir, PairingsFilename)
}

func TrustRootsFile(stateDir string) string {
	return filepath.Join(stateDir, TrustRootsFilename)
}

func LockRoot(stateDir string) string {
	return filepath.Join(stateDir, LockDirName)
}

func IngressDir(stateDir string) string {
	return filepath.Join(stateDir, IngressDirName)
}

func ChannelStoreRoot(stateDir string) string {
	return filepath.Join(stateDir, ChannelStoreDirName)
}

func ApprovalsFile(stateDir string) string {
	return filepath.Join(stateDir, ApprovalsFilename)
}

func ApprovalsAuditLog(stateDir string) string {
	return filepath.Join(stateDir, ApprovalsAuditName)
}

func ChannelPolicyFile(stateDir string) string {
	return filepath.Join(stateDir, ChannelPolicyName)
}

func RouteBindingsFile(stateDir string) string {
	return filepath.Join(stateDir, RouteBindingsName)
}

func RouteTableFile(stateDir string) string {
	return filepath.Join(stateDir, RouteTableFilename)
}
