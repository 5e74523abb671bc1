package routing

import "strings"

// Query describes the event being routed.
type Query struct {
	Transport      string
	AccountID      string
	ConversationID string
	ActorID        string
	Phase          string
	Category       string
}

// Resolution is the outcome. When Matched is false the event keeps its own
// conversation id as session key; that is the no-rerouting default, not an
// error.
type Resolution struct {
	Matched    bool
	BindingID  string
	Role       string
	SessionKey string
}

// Resolve picks the most specific matching binding; ties break by
// declaration order, first wins. Bindings whose category_hint is set and
// does not equal the query category are skipped entirely.
func Resolve(bindings []RouteBinding, table RouteTable, q Query) Resolution {
	best := -1
	bestIdx := -1
	for i, b := range bindings {
		if !fieldMatches(b.Transport, q.Transport) ||
			!fieldMatches(b.AccountID, q.AccountID) ||
			!fieldMatches(b.ConversationID, q.ConversationID) ||
			!fieldMatches(b.ActorID, q.ActorID) {
			continue
		}
		if !fieldMatches(b.Phase, q.Phase) {
			continue
		}
		if hint := strings.TrimSpace(b.CategoryHint); hint != "" && hint != strings.TrimSpace(q.Category) {
			continue
		}
		if spec := b.Specificity(); spec > best {
			best = spec
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return Resolution{SessionKey: strings.TrimSpace(q.ConversationID)}
	}

	binding := bindings[bestIdx]
	role := table.RoleFor(q.Phase, q.Category)
	sessionKey := strings.ReplaceAll(binding.SessionKeyTemplate, "{role}", role)
	return Resolution{
		Matched:    true,
		BindingID:  strings.TrimSpace(binding.BindingID),
		Role:       role,
		SessionKey: strings.TrimSpace(sessionKey),
	}
}

// Trace is one line of the append-only route traces log.
type Trace struct {
	BindingID    string `json:"binding_id,omitempty"`
	SelectedRole string `json:"selected_role,omitempty"`
	SessionKey   string `json:"session_key"`
}
