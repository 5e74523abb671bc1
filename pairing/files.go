package pairing

import (
	"fmt"
	"strings"

	"github.com/njfio/taubot/internal/fsstore"
	"github.com/njfio/taubot/internal/schemaver"
	"github.com/njfio/taubot/internal/statepaths"
)

var (
	allowlistPolicy = schemaver.Policy{Format: "allowlist", Min: 1, Max: 1}
	pairingsPolicy  = schemaver.Policy{Format: "pairings", Min: 1, Max: 1}
)

type AllowlistFile struct {
	SchemaVersion int                 `json:"schema_version"`
	Strict        bool                `json:"strict"`
	Channels      map[string][]string `json:"channels"`
}

// PairingRecord is a time-bounded grant for one actor on one channel.
// ExpiresUnixMS of zero means no expiry.
type PairingRecord struct {
	Channel       string `json:"channel"`
	ActorID       string `json:"actor_id"`
	ExpiresUnixMS int64  `json:"expires_unix_ms,omitempty"`
}

func (r PairingRecord) Expired(nowMS int64) bool {
	return r.ExpiresUnixMS != 0 && r.ExpiresUnixMS <= nowMS
}

type PairingsFile struct {
	SchemaVersion int             `json:"schema_version"`
	Pairings      []PairingRecord `json:"pairings"`
}

// LoadAllowlist reads allowlist.json from the state dir. A missing file is
// an empty allowlist, not an error.
func LoadAllowlist(stateDir string) (AllowlistFile, error) {
	var file AllowlistFile
	ok, err := fsstore.ReadJSON(statepaths.AllowlistFile(stateDir), &file)
	if err != nil {
		return AllowlistFile{}, fmt.Errorf("load allowlist: %w", err)
	}
	if !ok {
		return AllowlistFile{Channels: map[string][]string{}}, nil
	}
	if _, err := allowlistPolicy.Check(file.SchemaVersion); err != nil {
		return AllowlistFile{}, err
	}
	if file.Channels == nil {
		file.Channels = map[string][]string{}
	}
	return file, nil
}

// LoadPairings reads pairings.json from the state dir. Missing file means
// no pairings.
func LoadPairings(stateDir string) (PairingsFile, error) {
	var file PairingsFile
	ok, err := fsstore.ReadJSON(statepaths.PairingsFile(stateDir), &file)
	if err != nil {
		return PairingsFile{}, fmt.Errorf("load pairings: %w", err)
	}
	if !ok {
		return PairingsFile{}, nil
	}
	if _, err := pairingsPolicy.Check(file.SchemaVersion); err != nil {
		return PairingsFile{}, err
	}
	return file, nil
}

func (f AllowlistFile) contains(candidates []string, actorID string) bool {
	actorID = strings.TrimSpace(actorID)
	for _, key := range candidates {
		for _, id := range f.Channels[key] {
			if strings.TrimSpace(id) == actorID {
				return true
			}
		}
	}
	return false
}

func (f AllowlistFile) hasRules(candidates []string) bool {
	for _, key := range candidates {
		if len(f.Channels[key]) > 0 {
			return true
		}
	}
	return false
}

func (f PairingsFile) hasRules(candidates []string) bool {
	for _, rec := range f.Pairings {
		for _, key := range candidates {
			if strings.TrimSpace(rec.Channel) == key {
				return true
			}
		}
	}
	return false
}

func (f PairingsFile) activeFor(candidates []string, actorID string, nowMS int64) bool {
	actorID = strings.TrimSpace(actorID)
	for _, rec := range f.Pairings {
		if strings.TrimSpace(rec.ActorID) != actorID {
			continue
		}
		if rec.Expired(nowMS) {
			continue
		}
		for _, key := range candidates {
			if strings.TrimSpace(rec.Channel) == key {
				return true
			}
		}
	}
	return false
}
