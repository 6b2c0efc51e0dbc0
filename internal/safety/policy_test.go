package safety

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()
	if policy.MaxLimit != 500 {
		t.Fatalf("MaxLimit = %d, want 500", policy.MaxLimit)
	}
	want := []string{"customers", "vehicles", "repair_orders", "repair_order_items", "parts", "maintenance_schedules"}
	if diff := cmp.Diff(want, policy.TableNames()); diff != "" {
		t.Fatalf("TableNames() mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePolicyDefaultsMaxLimit(t *testing.T) {
	policy, err := ParsePolicy([]byte("tables:\n  - name: ' parts '\n"))
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}
	if policy.MaxLimit != defaultMaxLimit {
		t.Fatalf("MaxLimit = %d", policy.MaxLimit)
	}
	if policy.Tables[0].Name != "parts" {
		t.Fatalf("Tables[0].Name = %q", policy.Tables[0].Name)
	}
}

func TestParsePolicyRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"negative limit": "max_limit: -1\n",
		"unnamed table":  "tables:\n  - description: nothing\n",
		"duplicate":      "tables:\n  - name: parts\n  - name: PARTS\n",
		"bad yaml":       "tables: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("LoadPolicy(\"\") error = %v", err)
	}
	if len(policy.Tables) == 0 {
		t.Fatal("expected embedded default tables")
	}

	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "max_limit: 25\ntables:\n  - name: parts\n    columns: [id, name]\nforbidden_functions: [random]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	policy, err = LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if policy.MaxLimit != 25 || len(policy.Tables) != 1 || policy.ForbiddenFunctions[0] != "random" {
		t.Fatalf("unexpected policy %+v", policy)
	}

	verdict := NewValidator(policy).Validate("SELECT id FROM parts LIMIT 50", nil)
	if verdict.Safe() || !strings.Contains(strings.Join(verdict.Rules(), ","), string(RuleUnboundedResult)) {
		t.Fatalf("rules = %v", verdict.Rules())
	}

	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
