// Package routing selects the session a routed event belongs to. Route
// bindings match events by transport/account/conversation/actor with
// wildcard support; the most specific match wins and renders its session
// key template against the role the route table assigns to the event's
// processing phase.
package routing

import (
	"fmt"
	"strings"

	"github.com/njfio/taubot/internal/fsstore"
	"github.com/njfio/taubot/internal/schemaver"
)

const Wildcard = "*"

var (
	bindingsPolicy = schemaver.Policy{Format: "route_bindings", Min: 1, Max: 1}
	tablePolicy    = schemaver.Policy{Format: "route_table", Min: 1, Max: 1}
)

type RouteBinding struct {
	BindingID          string `json:"binding_id"`
	Transport          string `json:"transport"`
	AccountID          string `json:"account_id"`
	ConversationID     string `json:"conversation_id"`
	ActorID            string `json:"actor_id"`
	Phase              string `json:"phase"`
	CategoryHint       string `json:"category_hint,omitempty"`
	SessionKeyTemplate string `json:"session_key_template"`
}

type BindingsFile struct {
	SchemaVersion int            `json:"schema_version"`
	Bindings      []RouteBinding `json:"bindings"`
}

func LoadBindings(path string) (BindingsFile, error) {
	var file BindingsFile
	ok, err := fsstore.ReadJSON(path, &file)
	if err != nil {
		return BindingsFile{}, fmt.Errorf("load route bindings: %w", err)
	}
	if !ok {
		return BindingsFile{}, nil
	}
	if _, err := bindingsPolicy.Check(file.SchemaVersion); err != nil {
		return BindingsFile{}, err
	}
	return file, nil
}

// Specificity counts the non-wildcard matching fields of a binding.
func (b RouteBinding) Specificity() int {
	n := 0
	for _, field := range []string{b.Transport, b.AccountID, b.ConversationID, b.ActorID} {
		if !isWildcard(field) {
			n++
		}
	}
	return n
}

func isWildcard(field string) bool {
	field = strings.TrimSpace(field)
	return field == "" || field == Wildcard
}

func fieldMatches(pattern, value string) bool {
	if isWildcard(pattern) {
		return true
	}
	return strings.TrimSpace(pattern) == strings.TrimSpace(value)
}
