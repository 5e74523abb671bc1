// Package pairing implements the two-layer authorization gate every inbound
// event passes before any content or command handling: the channel policy
// check and the pairing/allowlist evaluation. Decisions are never errors;
// they carry a machine-readable reason code that is logged with the event.
package pairing

// Reason codes for pairing evaluation.
const (
	ReasonAllowPermissiveMode        = "allow_permissive_mode"
	ReasonAllowAllowlist             = "allow_allowlist"
	ReasonAllowPairing               = "allow_pairing"
	ReasonAllowAllowlistAndPairing   = "allow_allowlist_and_pairing"
	ReasonDenyActorIDMissing         = "deny_actor_id_missing"
	ReasonDenyNotPairedOrAllowlisted = "deny_actor_not_paired_or_allowlisted"
	ReasonDenyPairingRulesUnreadable = "deny_pairing_rules_unreadable"
)

// Reason codes for channel policy evaluation.
const (
	ReasonAllowFromAny               = "allow_channel_policy_allow_from_any"
	ReasonDenyDMPolicy               = "deny_channel_policy_dm"
	ReasonDenyGroupPolicy            = "deny_channel_policy_group"
	ReasonDenyMentionRequired        = "deny_channel_policy_mention_required"
	ReasonDenyAllowFromAllowlistOnly = "deny_channel_policy_allow_from_allowlist_only"
)

type Decision struct {
	Allowed    bool
	ReasonCode string
}

func Allow(reason string) Decision {
	return Decision{Allowed: true, ReasonCode: reason}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, ReasonCode: reason}
}
