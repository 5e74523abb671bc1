package envelope

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/njfio/taubot/internal/schemaver"
)

var trustRootsPolicy = schemaver.Policy{Format: "trust_roots", Min: 1, Max: 1}

// TrustedRootRecord is one verification key. ExpiresUnix is seconds since
// epoch; zero means no expiry. RotatedFrom links a replacement key to its
// predecessor for audit purposes; it does not affect verification.
type TrustedRootRecord struct {
	ID          string `json:"id"`
	PublicKey   string `json:"public_key"`
	Revoked     bool   `json:"revoked,omitempty"`
	ExpiresUnix int64  `json:"expires_unix,omitempty"`
	RotatedFrom string `json:"rotated_from,omitempty"`
}

type TrustRootSet struct {
	roots map[string]TrustedRootRecord
}

func NewTrustRootSet(records []TrustedRootRecord) *TrustRootSet {
	roots := make(map[string]TrustedRootRecord, len(records))
	for _, rec := range records {
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			continue
		}
		roots[id] = rec
	}
	return &TrustRootSet{roots: roots}
}

// Lookup returns the root for keyID if it exists, is not revoked, and has
// not expired at nowMS.
func (s *TrustRootSet) Lookup(keyID string, nowMS int64) (TrustedRootRecord, bool) {
	if s == nil {
		return TrustedRootRecord{}, false
	}
	rec, ok := s.roots[strings.TrimSpace(keyID)]
	if !ok {
		return TrustedRootRecord{}, false
	}
	if rec.Revoked {
		return TrustedRootRecord{}, false
	}
	if rec.ExpiresUnix != 0 && rec.ExpiresUnix*1000 <= nowMS {
		return TrustedRootRecord{}, false
	}
	return rec, true
}

// LoadTrustRoots reads the trust roots file, which is either a bare JSON
// array of records or an object {schema_version, roots: [...]} (the shared
// format other trust-sensitive subsystems write). Missing file means an
// empty set, which fails every envelope check closed.
func LoadTrustRoots(path string) (*TrustRootSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewTrustRootSet(nil), nil
		}
		return nil, fmt.Errorf("load trust roots: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return NewTrustRootSet(nil), nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var records []TrustedRootRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("load trust roots: %w", err)
		}
		return NewTrustRootSet(records), nil
	}

	var file struct {
		SchemaVersion int                 `json:"schema_version"`
		Roots         []TrustedRootRecord `json:"roots"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("load trust roots: %w", err)
	}
	if _, err := trustRootsPolicy.Check(file.SchemaVersion); err != nil {
		return nil, err
	}
	return NewTrustRootSet(file.Roots), nil
}
