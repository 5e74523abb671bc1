package pairing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/njfio/taubot/internal/fsstore"
	"github.com/njfio/taubot/internal/schemaver"
	"gopkg.in/yaml.v3"
)

var channelPolicyVersion = schemaver.Policy{Format: "channel_policy", Min: 1, Max: 1}

type AllowFrom string

const (
	AllowFromAny                AllowFrom = "any"
	AllowFromAllowlistOnly      AllowFrom = "allowlist_only"
	AllowFromAllowlistOrPairing AllowFrom = "allowlist_or_pairing"
)

type SecureMode string

const (
	SecureDisabled  SecureMode = "disabled"
	SecurePreferred SecureMode = "preferred"
	SecureRequired  SecureMode = "required"
)

const (
	defaultTimestampSkewSeconds = 300
	defaultReplayWindowSeconds  = 600
)

type PolicyRule struct {
	DMPolicy       string    `json:"dmPolicy,omitempty" yaml:"dmPolicy,omitempty"`
	AllowFrom      AllowFrom `json:"allowFrom,omitempty" yaml:"allowFrom,omitempty"`
	GroupPolicy    string    `json:"groupPolicy,omitempty" yaml:"groupPolicy,omitempty"`
	RequireMention bool      `json:"requireMention,omitempty" yaml:"requireMention,omitempty"`
}

type SecureMessaging struct {
	Mode                 SecureMode `json:"mode" yaml:"mode"`
	TimestampSkewSeconds int64      `json:"timestampSkewSeconds,omitempty" yaml:"timestampSkewSeconds,omitempty"`
	ReplayWindowSeconds  int64      `json:"replayWindowSeconds,omitempty" yaml:"replayWindowSeconds,omitempty"`
}

type PolicyFile struct {
	SchemaVersion   int                   `json:"schema_version" yaml:"schema_version"`
	StrictMode      bool                  `json:"strictMode,omitempty" yaml:"strictMode,omitempty"`
	SecureMessaging *SecureMessaging      `json:"secureMessaging,omitempty" yaml:"secureMessaging,omitempty"`
	DefaultPolicy   PolicyRule            `json:"defaultPolicy" yaml:"defaultPolicy"`
	Channels        map[string]PolicyRule `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// LoadPolicyFile reads a channel policy document. The format follows the
// extension: .yaml/.yml parse as YAML, anything else as JSON. A missing
// file yields the zero policy (everything falls through to defaults).
func LoadPolicyFile(path string) (PolicyFile, error) {
	var file PolicyFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return PolicyFile{}, nil
			}
			return PolicyFile{}, fmt.Errorf("load channel policy: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return PolicyFile{}, fmt.Errorf("load channel policy: %w", err)
		}
	default:
		ok, err := fsstore.ReadJSON(path, &file)
		if err != nil {
			return PolicyFile{}, fmt.Errorf("load channel policy: %w", err)
		}
		if !ok {
			return PolicyFile{}, nil
		}
	}
	if _, err := channelPolicyVersion.Check(file.SchemaVersion); err != nil {
		return PolicyFile{}, err
	}
	return file, nil
}

// RuleFor resolves the per-channel override else the default policy,
// walking the channel key candidates from most to least specific.
func (f PolicyFile) RuleFor(channel string) PolicyRule {
	for _, key := range ChannelKeyCandidates(channel) {
		if key == "*" {
			break
		}
		if rule, ok := f.Channels[key]; ok {
			return mergeRule(f.DefaultPolicy, rule)
		}
	}
	if rule, ok := f.Channels["*"]; ok {
		return mergeRule(f.DefaultPolicy, rule)
	}
	return normalizeRule(f.DefaultPolicy)
}

// Secure returns the effective secure messaging settings with defaults
// applied.
func (f PolicyFile) Secure() SecureMessaging {
	out := SecureMessaging{Mode: SecureDisabled}
	if f.SecureMessaging != nil {
		out = *f.SecureMessaging
	}
	if out.Mode == "" {
		out.Mode = SecureDisabled
	}
	if out.TimestampSkewSeconds <= 0 {
		out.TimestampSkewSeconds = defaultTimestampSkewSeconds
	}
	if out.ReplayWindowSeconds <= 0 {
		out.ReplayWindowSeconds = defaultReplayWindowSeconds
	}
	return out
}

func mergeRule(base, override PolicyRule) PolicyRule {
	out := normalizeRule(base)
	if strings.TrimSpace(override.DMPolicy) != "" {
		out.DMPolicy = override.DMPolicy
	}
	if strings.TrimSpace(string(override.AllowFrom)) != "" {
		out.AllowFrom = override.AllowFrom
	}
	if strings.TrimSpace(override.GroupPolicy) != "" {
		out.GroupPolicy = override.GroupPolicy
	}
	if override.RequireMention {
		out.RequireMention = true
	}
	return out
}

func normalizeRule(rule PolicyRule) PolicyRule {
	if strings.TrimSpace(rule.DMPolicy) == "" {
		rule.DMPolicy = "allow"
	}
	if strings.TrimSpace(string(rule.AllowFrom)) == "" {
		rule.AllowFrom = AllowFromAllowlistOrPairing
	}
	if strings.TrimSpace(rule.GroupPolicy) == "" {
		rule.GroupPolicy = "allow"
	}
	return rule
}

// EventContext is the slice of an inbound event the policy engine needs.
type EventContext struct {
	Channel     string
	ActorID     string
	IsGroup     bool
	MentionsBot bool
	NowMS       int64
}

// EvaluatePolicy runs the channel-policy layer and, where the rule says
// allowlist_or_pairing, delegates to the evaluator. DM deny is
// unconditional regardless of allowFrom; allowlist_only never consults
// pairings, so a paired-but-unlisted actor is denied.
func EvaluatePolicy(file PolicyFile, evaluator Evaluator, ec EventContext) (Decision, error) {
	rule := file.RuleFor(ec.Channel)

	if ec.IsGroup {
		if strings.EqualFold(rule.GroupPolicy, "deny") {
			return Deny(ReasonDenyGroupPolicy), nil
		}
		if rule.RequireMention && !ec.MentionsBot {
			return Deny(ReasonDenyMentionRequired), nil
		}
	} else if strings.EqualFold(rule.DMPolicy, "deny") {
		return Deny(ReasonDenyDMPolicy), nil
	}

	switch rule.AllowFrom {
	case AllowFromAny:
		return Allow(ReasonAllowFromAny), nil
	case AllowFromAllowlistOnly:
		listed, err := evaluator.Allowlisted(ec.Channel, ec.ActorID)
		if err != nil {
			return Deny(ReasonDenyPairingRulesUnreadable), err
		}
		if strings.TrimSpace(ec.ActorID) == "" {
			return Deny(ReasonDenyActorIDMissing), nil
		}
		if listed {
			return Allow(ReasonAllowAllowlist), nil
		}
		return Deny(ReasonDenyAllowFromAllowlistOnly), nil
	default:
		return evaluator.Evaluate(ec.Channel, ec.ActorID, ec.NowMS)
	}
}
