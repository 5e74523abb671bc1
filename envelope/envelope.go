// Package envelope implements secure-messaging envelope verification:
// ed25519 signatures over a JCS-canonicalized message, trust root lookup
// with revocation and expiry, timestamp skew bounds, and per-channel nonce
// replay protection.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	ic "github.com/libp2p/go-libp2p/core/crypto"
)

// Reason codes for envelope verification.
const (
	ReasonAllowVerified        = "allow_signed_envelope_verified"
	ReasonDenyMissing          = "deny_signed_envelope_missing"
	ReasonDenyUntrustedKey     = "deny_signed_envelope_untrusted_key"
	ReasonDenyInvalidSignature = "deny_signed_envelope_invalid_signature"
	ReasonDenyTimestampSkew    = "deny_signed_envelope_timestamp_skew"
	ReasonDenyReplay           = "deny_signed_envelope_replay"
)

const ed25519PublicKeyBytes = 32

// MetadataKey is where transports place the envelope inside event metadata.
const MetadataKey = "signed_envelope"

type SignedEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	KeyID         string `json:"key_id"`
	Nonce         string `json:"nonce"`
	TimestampMS   int64  `json:"timestamp_ms"`
	Channel       string `json:"channel"`
	ActorID       string `json:"actor_id"`
	EventID       string `json:"event_id"`
	Signature     string `json:"signature"`
}

// canonicalMessage is the signed portion: the envelope's addressing fields
// plus the message text, canonicalized with JCS so signer and verifier agree
// byte for byte.
type canonicalMessage struct {
	Channel     string `json:"channel"`
	ActorID     string `json:"actor_id"`
	EventID     string `json:"event_id"`
	TimestampMS int64  `json:"timestamp_ms"`
	Nonce       string `json:"nonce"`
	Text        string `json:"text"`
}

// CanonicalBytes renders the deterministic signing input for an envelope
// over the given message text.
func CanonicalBytes(env SignedEnvelope, text string) ([]byte, error) {
	raw, err := json.Marshal(canonicalMessage{
		Channel:     env.Channel,
		ActorID:     env.ActorID,
		EventID:     env.EventID,
		TimestampMS: env.TimestampMS,
		Nonce:       env.Nonce,
		Text:        text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal canonical message: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize message: %w", err)
	}
	return canonical, nil
}

// FromMetadata extracts a signed envelope from event metadata. Returns nil
// when no envelope is present; an envelope that is present but does not
// decode is an error (treated as invalid, never as absent).
func FromMetadata(metadata map[string]any) (*SignedEnvelope, error) {
	v, ok := metadata[MetadataKey]
	if !ok || v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("re-encode signed_envelope: %w", err)
	}
	var env SignedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode signed_envelope: %w", err)
	}
	if strings.TrimSpace(env.KeyID) == "" || strings.TrimSpace(env.Signature) == "" {
		return nil, fmt.Errorf("signed_envelope is incomplete")
	}
	return &env, nil
}

// VerifyInput bundles everything a single envelope check needs.
type VerifyInput struct {
	Envelope             SignedEnvelope
	Text                 string
	Channel              string
	NowMS                int64
	TimestampSkewSeconds int64
	Roots                *TrustRootSet
	Replay               *ReplayTracker
	ReplayWindowSeconds  int64
}

// Verify runs the verification steps in order: trust root, signature,
// timestamp skew, replay. The first failing step names the denial.
func Verify(in VerifyInput) (bool, string) {
	root, ok := in.Roots.Lookup(in.Envelope.KeyID, in.NowMS)
	if !ok {
		return false, ReasonDenyUntrustedKey
	}

	pubRaw, err := decodeBase64URL(root.PublicKey)
	if err != nil || len(pubRaw) != ed25519PublicKeyBytes {
		return false, ReasonDenyUntrustedKey
	}
	pub, err := ic.UnmarshalEd25519PublicKey(pubRaw)
	if err != nil {
		return false, ReasonDenyUntrustedKey
	}

	msg, err := CanonicalBytes(in.Envelope, in.Text)
	if err != nil {
		return false, ReasonDenyInvalidSignature
	}
	sig, err := decodeBase64URL(in.Envelope.Signature)
	if err != nil {
		return false, ReasonDenyInvalidSignature
	}
	valid, err := pub.Verify(msg, sig)
	if err != nil || !valid {
		return false, ReasonDenyInvalidSignature
	}

	skewMS := in.TimestampSkewSeconds * 1000
	delta := in.NowMS - in.Envelope.TimestampMS
	if delta < 0 {
		delta = -delta
	}
	if delta > skewMS {
		return false, ReasonDenyTimestampSkew
	}

	if in.Replay != nil {
		if fresh := in.Replay.Observe(in.Channel, in.Envelope.Nonce, in.NowMS, in.ReplayWindowSeconds*1000); !fresh {
			return false, ReasonDenyReplay
		}
	}

	return true, ReasonAllowVerified
}

// Sign produces an envelope for the given message text with the supplied
// raw ed25519 private key (base64url, libp2p raw encoding). Used by the
// signing side and by tests.
func Sign(privBase64URL, keyID string, env SignedEnvelope, text string) (SignedEnvelope, error) {
	privRaw, err := decodeBase64URL(privBase64URL)
	if err != nil {
		return SignedEnvelope{}, fmt.Errorf("decode private key: %w", err)
	}
	priv, err := ic.UnmarshalEd25519PrivateKey(privRaw)
	if err != nil {
		return SignedEnvelope{}, fmt.Errorf("unmarshal ed25519 private key: %w", err)
	}
	env.KeyID = keyID
	msg, err := CanonicalBytes(env, text)
	if err != nil {
		return SignedEnvelope{}, err
	}
	sig, err := priv.Sign(msg)
	if err != nil {
		return SignedEnvelope{}, fmt.Errorf("sign message: %w", err)
	}
	env.Signature = encodeBase64URL(sig)
	return env, nil
}

func encodeBase64URL(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeBase64URL(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimSpace(encoded))
}
