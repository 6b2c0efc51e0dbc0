package safety

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

const defaultMaxLimit = 500

type TablePolicy struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Columns     []string `yaml:"columns"`
}

// Policy describes what generated queries may touch. An empty table list
// disables the allow-list; system catalogs stay rejected either way.
type Policy struct {
	MaxLimit           int           `yaml:"max_limit"`
	Tables             []TablePolicy `yaml:"tables"`
	ForbiddenFunctions []string      `yaml:"forbidden_functions"`
}

func DefaultPolicy() Policy {
	policy, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded safety policy is invalid: %v", err))
	}
	return policy
}

func LoadPolicy(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read safety policy %q: %w", path, err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return Policy{}, fmt.Errorf("parse safety policy %q: %w", path, err)
	}
	return policy, nil
}

func ParsePolicy(data []byte) (Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("decode policy yaml: %w", err)
	}
	if policy.MaxLimit < 0 {
		return Policy{}, fmt.Errorf("max_limit must be >= 0")
	}
	if policy.MaxLimit == 0 {
		policy.MaxLimit = defaultMaxLimit
	}
	seen := map[string]struct{}{}
	for i, table := range policy.Tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return Policy{}, fmt.Errorf("table %d has no name", i)
		}
		if _, ok := seen[strings.ToLower(name)]; ok {
			return Policy{}, fmt.Errorf("table %q listed twice", name)
		}
		seen[strings.ToLower(name)] = struct{}{}
		policy.Tables[i].Name = name
	}
	return policy, nil
}

func (p Policy) TableNames() []string {
	names := make([]string, 0, len(p.Tables))
	for _, table := range p.Tables {
		names = append(names, table.Name)
	}
	return names
}
