package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	ic "github.com/libp2p/go-libp2p/core/crypto"
)

func testKeypair(t *testing.T) (privB64, pubB64 string) {
	t.Helper()
	priv, pub, err := ic.GenerateEd25519Key(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateEd25519Key() error = %v", err)
	}
	privRaw, err := priv.Raw()
	if err != nil {
		t.Fatalf("priv.Raw() error = %v", err)
	}
	pubRaw, err := pub.Raw()
	if err != nil {
		t.Fatalf("pub.Raw() error = %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(privRaw),
		base64.RawURLEncoding.EncodeToString(pubRaw)
}

func signedTestEnvelope(t *testing.T, privB64, keyID, text string, tsMS int64) SignedEnvelope {
	t.Helper()
	env, err := Sign(privB64, keyID, SignedEnvelope{
		SchemaVersion: 1,
		Nonce:         "nonce-1",
		TimestampMS:   tsMS,
		Channel:       "telegram:c1",
		ActorID:       "actor-1",
		EventID:       "e1",
	}, text)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return env
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	privB64, pubB64 := testKeypair(t)
	env := signedTestEnvelope(t, privB64, "key-1", "hello", 10_000)
	roots := NewTrustRootSet([]TrustedRootRecord{{ID: "key-1", PublicKey: pubB64}})

	ok, reason := Verify(VerifyInput{
		Envelope:             env,
		Text:                 "hello",
		Channel:              "telegram:c1",
		NowMS:                12_000,
		TimestampSkewSeconds: 300,
		Roots:                roots,
		Replay:               NewReplayTracker(),
		ReplayWindowSeconds:  600,
	})
	if !ok || reason != ReasonAllowVerified {
		t.Fatalf("Verify() = %v,%s, want allow_signed_envelope_verified", ok, reason)
	}
}

func TestVerifyTamperedTextRejected(t *testing.T) {
	t.Parallel()

	privB64, pubB64 := testKeypair(t)
	env := signedTestEnvelope(t, privB64, "key-1", "hello", 10_000)
	roots := NewTrustRootSet([]TrustedRootRecord{{ID: "key-1", PublicKey: pubB64}})

	ok, reason := Verify(VerifyInput{
		Envelope:             env,
		Text:                 "hello, tampered",
		Channel:              "telegram:c1",
		NowMS:                12_000,
		TimestampSkewSeconds: 300,
		Roots:                roots,
		Replay:               NewReplayTracker(),
		ReplayWindowSeconds:  600,
	})
	if ok || reason != ReasonDenyInvalidSignature {
		t.Fatalf("Verify() = %v,%s, want deny_signed_envelope_invalid_signature", ok, reason)
	}
}

func TestVerifyNonceReplayDenied(t *testing.T) {
	t.Parallel()

	privB64, pubB64 := testKeypair(t)
	env := signedTestEnvelope(t, privB64, "key-1", "hello", 10_000)
	roots := NewTrustRootSet([]TrustedRootRecord{{ID: "key-1", PublicKey: pubB64}})
	replay := NewReplayTracker()

	in := VerifyInput{
		Envelope:             env,
		Text:                 "hello",
		Channel:              "telegram:c1",
		NowMS:                12_000,
		TimestampSkewSeconds: 300,
		Roots:                roots,
		Replay:               replay,
		ReplayWindowSeconds:  600,
	}
	if ok, _ := Verify(in); !ok {
		t.Fatalf("Verify() first occurrence should pass")
	}
	ok, reason := Verify(in)
	if ok || reason != ReasonDenyReplay {
		t.Fatalf("Verify() second occurrence = %v,%s, want deny_signed_envelope_replay", ok, reason)
	}
}

func TestReplayIndependentAcrossChannels(t *testing.T) {
	t.Parallel()

	replay := NewReplayTracker()
	if !replay.Observe("telegram:c1", "n1", 1000, 60_000) {
		t.Fatalf("Observe(c1,n1) = false, want fresh")
	}
	if !replay.Observe("telegram:c2", "n1", 1000, 60_000) {
		t.Fatalf("Observe(c2,n1) = false, want fresh across channels")
	}
	if replay.Observe("telegram:c1", "n1", 1500, 60_000) {
		t.Fatalf("Observe(c1,n1) repeat = true, want replay")
	}
}

func TestReplayWindowPruning(t *testing.T) {
	t.Parallel()

	replay := NewReplayTracker()
	if !replay.Observe("telegram:c1", "n1", 1000, 10_000) {
		t.Fatalf("Observe() first = false")
	}
	// Outside the window the nonce is forgotten and accepted again.
	if !replay.Observe("telegram:c1", "n1", 20_001, 10_000) {
		t.Fatalf("Observe() after window = false, want fresh")
	}
}

func TestVerifyTimestampSkewDenied(t *testing.T) {
	t.Parallel()

	privB64, pubB64 := testKeypair(t)
	env := signedTestEnvelope(t, privB64, "key-1", "hello", 10_000)
	roots := NewTrustRootSet([]TrustedRootRecord{{ID: "key-1", PublicKey: pubB64}})

	ok, reason := Verify(VerifyInput{
		Envelope:             env,
		Text:                 "hello",
		Channel:              "telegram:c1",
		NowMS:                10_000 + 301*1000,
		TimestampSkewSeconds: 300,
		Roots:                roots,
		Replay:               NewReplayTracker(),
		ReplayWindowSeconds:  600,
	})
	if ok || reason != ReasonDenyTimestampSkew {
		t.Fatalf("Verify() = %v,%s, want deny_signed_envelope_timestamp_skew", ok, reason)
	}
}

func TestVerifyUntrustedKeys(t *testing.T) {
	t.Parallel()

	privB64, pubB64 := testKeypair(t)
	env := signedTestEnvelope(t, privB64, "key-1", "hello", 10_000)

	cases := []struct {
		name  string
		roots *TrustRootSet
	}{
		{"unknown", NewTrustRootSet(nil)},
		{"revoked", NewTrustRootSet([]TrustedRootRecord{{ID: "key-1", PublicKey: pubB64, Revoked: true}})},
		{"expired", NewTrustRootSet([]TrustedRootRecord{{ID: "key-1", PublicKey: pubB64, ExpiresUnix: 5}})},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ok, reason := Verify(VerifyInput{
				Envelope:             env,
				Text:                 "hello",
				Channel:              "telegram:c1",
				NowMS:                12_000,
				TimestampSkewSeconds: 300,
				Roots:                tc.roots,
				Replay:               NewReplayTracker(),
				ReplayWindowSeconds:  600,
			})
			if ok || reason != ReasonDenyUntrustedKey {
				t.Fatalf("Verify() = %v,%s, want deny_signed_envelope_untrusted_key", ok, reason)
			}
		})
	}
}

func TestLoadTrustRootsBothShapes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	arrayPath := filepath.Join(dir, "roots_array.json")
	if err := os.WriteFile(arrayPath, []byte(`[{"id":"k1","public_key":"pk"}]`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	set, err := LoadTrustRoots(arrayPath)
	if err != nil {
		t.Fatalf("LoadTrustRoots(array) error = %v", err)
	}
	if _, ok := set.Lookup("k1", 0); !ok {
		t.Fatalf("Lookup(k1) missing after array load")
	}

	objPath := filepath.Join(dir, "roots_obj.json")
	if err := os.WriteFile(objPath, []byte(`{"schema_version":1,"roots":[{"id":"k2","public_key":"pk"}]}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	set, err = LoadTrustRoots(objPath)
	if err != nil {
		t.Fatalf("LoadTrustRoots(object) error = %v", err)
	}
	if _, ok := set.Lookup("k2", 0); !ok {
		t.Fatalf("Lookup(k2) missing after object load")
	}

	missing, err := LoadTrustRoots(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("LoadTrustRoots(missing) error = %v", err)
	}
	if _, ok := missing.Lookup("k1", 0); ok {
		t.Fatalf("Lookup on missing file should fail closed")
	}
}

func TestFromMetadata(t *testing.T) {
	t.Parallel()

	env, err := FromMetadata(nil)
	if err != nil || env != nil {
		t.Fatalf("FromMetadata(nil) = %v,%v, want nil,nil", env, err)
	}

	meta := map[string]any{
		MetadataKey: map[string]any{
			"schema_version": 1,
			"key_id":         "k1",
			"nonce":          "n1",
			"timestamp_ms":   float64(1000),
			"channel":        "telegram:c1",
			"actor_id":       "a1",
			"event_id":       "e1",
			"signature":      "c2ln",
		},
	}
	env, err = FromMetadata(meta)
	if err != nil {
		t.Fatalf("FromMetadata() error = %v", err)
	}
	if env == nil || env.KeyID != "k1" || env.TimestampMS != 1000 {
		t.Fatalf("FromMetadata() = %+v", env)
	}

	if _, err := FromMetadata(map[string]any{MetadataKey: map[string]any{"key_id": ""}}); err == nil {
		t.Fatalf("FromMetadata(incomplete) expected error")
	}
}
