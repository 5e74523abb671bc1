package routing

import (
	"fmt"
	"strings"

	"github.com/njfio/taubot/internal/fsstore"
)

// Phases an event can be routed under.
const (
	PhasePlanner       = "planner"
	PhaseDelegatedStep = "delegated_step"
	PhaseReview        = "review"
)

type RoleDefinition struct {
	Description string `json:"description,omitempty"`
}

// RouteTable maps processing phases (and delegated categories) to roles.
type RouteTable struct {
	SchemaVersion       int                       `json:"schema_version"`
	Roles               map[string]RoleDefinition `json:"roles,omitempty"`
	Planner             string                    `json:"planner"`
	Delegated           string                    `json:"delegated"`
	DelegatedCategories map[string]string         `json:"delegated_categories,omitempty"`
	Review              string                    `json:"review"`
}

func LoadRouteTable(path string) (RouteTable, error) {
	var table RouteTable
	ok, err := fsstore.ReadJSON(path, &table)
	if err != nil {
		return RouteTable{}, fmt.Errorf("load route table: %w", err)
	}
	if !ok {
		return RouteTable{}, nil
	}
	if _, err := tablePolicy.Check(table.SchemaVersion); err != nil {
		return RouteTable{}, err
	}
	return table, nil
}

// RoleFor resolves the role for a phase. For delegated steps a category
// override wins over the generic delegated role.
func (t RouteTable) RoleFor(phase, category string) string {
	switch strings.TrimSpace(phase) {
	case PhasePlanner:
		return strings.TrimSpace(t.Planner)
	case PhaseReview:
		return strings.TrimSpace(t.Review)
	case PhaseDelegatedStep:
		category = strings.TrimSpace(category)
		if category != "" {
			if role, ok := t.DelegatedCategories[category]; ok && strings.TrimSpace(role) != "" {
				return strings.TrimSpace(role)
			}
		}
		return strings.TrimSpace(t.Delegated)
	default:
		return ""
	}
}
