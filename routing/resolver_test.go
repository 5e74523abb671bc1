package routing

import (
	"os"
	"path/filepath"
	"testing"
)

var testTable = RouteTable{
	Planner:   "planner_role",
	Delegated: "worker_role",
	DelegatedCategories: map[string]string{
		"research": "researcher_role",
	},
	Review: "reviewer_role",
}

func TestResolveSpecificBeatsWildcard(t *testing.T) {
	t.Parallel()

	bindings := []RouteBinding{
		{BindingID: "b-wild", Transport: "*", AccountID: "*", ConversationID: "*", ActorID: "*", Phase: "*", SessionKeyTemplate: "wild-{role}"},
		{BindingID: "b-exact", Transport: "telegram", AccountID: "acct", ConversationID: "c1", ActorID: "a1", Phase: "*", SessionKeyTemplate: "exact-{role}"},
	}
	res := Resolve(bindings, testTable, Query{
		Transport:      "telegram",
		AccountID:      "acct",
		ConversationID: "c1",
		ActorID:        "a1",
		Phase:          PhasePlanner,
	})
	if !res.Matched || res.BindingID != "b-exact" {
		t.Fatalf("Resolve() = %+v, want b-exact", res)
	}
	if res.SessionKey != "exact-planner_role" {
		t.Fatalf("Resolve() session key = %q", res.SessionKey)
	}
}

func TestResolveTieBreaksByDeclarationOrder(t *testing.T) {
	t.Parallel()

	bindings := []RouteBinding{
		{BindingID: "b-first", Transport: "telegram", Phase: "*", SessionKeyTemplate: "first-{role}"},
		{BindingID: "b-second", Transport: "telegram", Phase: "*", SessionKeyTemplate: "second-{role}"},
	}
	res := Resolve(bindings, testTable, Query{Transport: "telegram", ConversationID: "c1", Phase: PhaseReview})
	if res.BindingID != "b-first" {
		t.Fatalf("Resolve() binding = %s, want b-first", res.BindingID)
	}
	if res.Role != "reviewer_role" {
		t.Fatalf("Resolve() role = %s, want reviewer_role", res.Role)
	}
}

func TestResolveCategoryHintFilters(t *testing.T) {
	t.Parallel()

	bindings := []RouteBinding{
		{BindingID: "b-research", Transport: "*", Phase: "*", CategoryHint: "research", SessionKeyTemplate: "research-{role}"},
	}

	res := Resolve(bindings, testTable, Query{Transport: "discord", ConversationID: "c9", Phase: PhaseDelegatedStep, Category: "coding"})
	if res.Matched {
		t.Fatalf("Resolve() matched binding with mismatched category hint: %+v", res)
	}
	if res.SessionKey != "c9" {
		t.Fatalf("Resolve() fallback session key = %q, want conversation id", res.SessionKey)
	}

	res = Resolve(bindings, testTable, Query{Transport: "discord", ConversationID: "c9", Phase: PhaseDelegatedStep, Category: "research"})
	if !res.Matched || res.SessionKey != "research-researcher_role" {
		t.Fatalf("Resolve() = %+v, want research category role", res)
	}
}

func TestResolveNoMatchKeepsConversation(t *testing.T) {
	t.Parallel()

	res := Resolve(nil, testTable, Query{Transport: "whatsapp", ConversationID: "w1", Phase: PhasePlanner})
	if res.Matched {
		t.Fatalf("Resolve() matched with no bindings")
	}
	if res.SessionKey != "w1" {
		t.Fatalf("Resolve() session key = %q, want w1", res.SessionKey)
	}
}

func TestRoleForDelegatedCategoryFallback(t *testing.T) {
	t.Parallel()

	if got := testTable.RoleFor(PhaseDelegatedStep, "research"); got != "researcher_role" {
		t.Fatalf("RoleFor(research) = %s", got)
	}
	if got := testTable.RoleFor(PhaseDelegatedStep, "unknown"); got != "worker_role" {
		t.Fatalf("RoleFor(unknown) = %s", got)
	}
	if got := testTable.RoleFor("bogus", ""); got != "" {
		t.Fatalf("RoleFor(bogus) = %s, want empty", got)
	}
}

func TestLoadBindingsAndTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bindingsPath := filepath.Join(dir, "bindings.json")
	if err := os.WriteFile(bindingsPath, []byte(`{
  "schema_version": 1,
  "bindings": [
    {"binding_id":"b1","transport":"telegram","account_id":"*","conversation_id":"*","actor_id":"*","phase":"*","session_key_template":"{role}-session"}
  ]
}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	file, err := LoadBindings(bindingsPath)
	if err != nil {
		t.Fatalf("LoadBindings() error = %v", err)
	}
	if len(file.Bindings) != 1 || file.Bindings[0].BindingID != "b1" {
		t.Fatalf("LoadBindings() = %+v", file)
	}

	tablePath := filepath.Join(dir, "table.json")
	if err := os.WriteFile(tablePath, []byte(`{
  "schema_version": 1,
  "roles": {"planner_role": {"description": "plans"}},
  "planner": "planner_role",
  "delegated": "worker_role",
  "review": "reviewer_role"
}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	table, err := LoadRouteTable(tablePath)
	if err != nil {
		t.Fatalf("LoadRouteTable() error = %v", err)
	}
	if table.Planner != "planner_role" {
		t.Fatalf("LoadRouteTable() planner = %s", table.Planner)
	}
}
