package pairing

import "strings"

// Evaluator decides whether an actor may act on a channel. Implementations
// are injected into the runtime at construction; the file-backed evaluator
// re-reads the registry on every decision so external edits take effect
// without a restart.
type Evaluator interface {
	Evaluate(channel, actorID string, nowMS int64) (Decision, error)
	Allowlisted(channel, actorID string) (bool, error)
}

// FileEvaluator reads allowlist.json and pairings.json under StateDir.
// ForceStrict mirrors the channel policy file's strictMode: it disables the
// permissive short-circuit even when the allowlist carries no strict flag.
type FileEvaluator struct {
	StateDir    string
	ForceStrict bool
}

func (e FileEvaluator) Evaluate(channel, actorID string, nowMS int64) (Decision, error) {
	candidates := ChannelKeyCandidates(channel)

	allowlist, err := LoadAllowlist(e.StateDir)
	if err != nil {
		return Deny(ReasonDenyPairingRulesUnreadable), err
	}
	pairings, err := LoadPairings(e.StateDir)
	if err != nil {
		return Deny(ReasonDenyPairingRulesUnreadable), err
	}

	rulesPresent := allowlist.hasRules(candidates) || pairings.hasRules(candidates)
	if !rulesPresent && !allowlist.Strict && !e.ForceStrict {
		return Allow(ReasonAllowPermissiveMode), nil
	}

	if strings.TrimSpace(actorID) == "" {
		return Deny(ReasonDenyActorIDMissing), nil
	}

	onAllowlist := allowlist.contains(candidates, actorID)
	paired := pairings.activeFor(candidates, actorID, nowMS)

	switch {
	case onAllowlist && paired:
		return Allow(ReasonAllowAllowlistAndPairing), nil
	case onAllowlist:
		return Allow(ReasonAllowAllowlist), nil
	case paired:
		return Allow(ReasonAllowPairing), nil
	default:
		return Deny(ReasonDenyNotPairedOrAllowlisted), nil
	}
}

func (e FileEvaluator) Allowlisted(channel, actorID string) (bool, error) {
	allowlist, err := LoadAllowlist(e.StateDir)
	if err != nil {
		return false, err
	}
	return allowlist.contains(ChannelKeyCandidates(channel), actorID), nil
}
