package pairing

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStateFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", name, err)
	}
}

func TestEvaluatePermissiveModeWithNoRules(t *testing.T) {
	t.Parallel()

	e := FileEvaluator{StateDir: t.TempDir()}
	dec, err := e.Evaluate("telegram:c1", "anyone", 1000)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !dec.Allowed || dec.ReasonCode != ReasonAllowPermissiveMode {
		t.Fatalf("Evaluate() = %+v, want allow_permissive_mode", dec)
	}
}

func TestEvaluateStrictEmptyRulesetDeniesEveryone(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeStateFile(t, dir, "allowlist.json", `{"schema_version":1,"strict":true,"channels":{}}`)

	e := FileEvaluator{StateDir: dir}
	dec, err := e.Evaluate("telegram:c1", "actor-1", 1000)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Allowed || dec.ReasonCode != ReasonDenyNotPairedOrAllowlisted {
		t.Fatalf("Evaluate() = %+v, want deny_actor_not_paired_or_allowlisted", dec)
	}

	dec, err = e.Evaluate("telegram:c1", "   ", 1000)
	if err != nil {
		t.Fatalf("Evaluate(whitespace actor) error = %v", err)
	}
	if dec.Allowed || dec.ReasonCode != ReasonDenyActorIDMissing {
		t.Fatalf("Evaluate(whitespace actor) = %+v, want deny_actor_id_missing", dec)
	}
}

func TestEvaluateAllowlistAndPairingCombinations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeStateFile(t, dir, "allowlist.json",
		`{"schema_version":1,"strict":false,"channels":{"telegram:c1":["listed","both"]}}`)
	writeStateFile(t, dir, "pairings.json",
		`{"schema_version":1,"pairings":[
			{"channel":"telegram:c1","actor_id":"paired"},
			{"channel":"telegram:c1","actor_id":"both"},
			{"channel":"telegram:c1","actor_id":"expired","expires_unix_ms":500}
		]}`)

	e := FileEvaluator{StateDir: dir}
	cases := []struct {
		actor  string
		allow  bool
		reason string
	}{
		{"listed", true, ReasonAllowAllowlist},
		{"paired", true, ReasonAllowPairing},
		{"both", true, ReasonAllowAllowlistAndPairing},
		{"expired", false, ReasonDenyNotPairedOrAllowlisted},
		{"stranger", false, ReasonDenyNotPairedOrAllowlisted},
	}
	for _, tc := range cases {
		dec, err := e.Evaluate("telegram:c1", tc.actor, 1000)
		if err != nil {
			t.Fatalf("Evaluate(%s) error = %v", tc.actor, err)
		}
		if dec.Allowed != tc.allow || dec.ReasonCode != tc.reason {
			t.Fatalf("Evaluate(%s) = %+v, want allow=%v reason=%s", tc.actor, dec, tc.allow, tc.reason)
		}
	}
}

func TestEvaluateTransportWildcardRules(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeStateFile(t, dir, "pairings.json",
		`{"schema_version":1,"pairings":[{"channel":"telegram","actor_id":"roamer"}]}`)

	e := FileEvaluator{StateDir: dir}
	dec, err := e.Evaluate("telegram:anywhere", "roamer", 1000)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !dec.Allowed || dec.ReasonCode != ReasonAllowPairing {
		t.Fatalf("Evaluate() = %+v, want allow_pairing via transport wildcard", dec)
	}

	// Rules exist for the transport wildcard, so a stranger is denied
	// rather than falling into permissive mode.
	dec, err = e.Evaluate("telegram:anywhere", "stranger", 1000)
	if err != nil {
		t.Fatalf("Evaluate(stranger) error = %v", err)
	}
	if dec.Allowed {
		t.Fatalf("Evaluate(stranger) = %+v, want deny", dec)
	}
}

func TestEvaluateForceStrict(t *testing.T) {
	t.Parallel()

	e := FileEvaluator{StateDir: t.TempDir(), ForceStrict: true}
	dec, err := e.Evaluate("telegram:c1", "anyone", 1000)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if dec.Allowed {
		t.Fatalf("Evaluate() = %+v, want deny under forced strict mode", dec)
	}
}

func TestEvaluateMalformedRegistryFailsClosed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeStateFile(t, dir, "pairings.json", `{"schema_version":1,`)

	e := FileEvaluator{StateDir: dir}
	dec, err := e.Evaluate("telegram:c1", "anyone", 1000)
	if err == nil {
		t.Fatalf("Evaluate() expected error for malformed registry")
	}
	if dec.Allowed || dec.ReasonCode != ReasonDenyPairingRulesUnreadable {
		t.Fatalf("Evaluate() = %+v, want fail-closed deny", dec)
	}
}
