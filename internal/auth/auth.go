package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
)

// RoleGatewayUser may send commands and run searches.
const RoleGatewayUser = "gateway_user"

type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator holds identities keyed by the SHA-256 digest of
// their API key, so plaintext keys are not retained after startup.
type StaticAPIKeyValidator struct {
	identities map[[sha256.Size]byte]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:subject:role|role entries.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{identities: map[[sha256.Size]byte]Identity{}}
	for index, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, identity, err := parseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("static key entry %d: %w", index+1, err)
		}
		digest := sha256.Sum256([]byte(key))
		if _, exists := validator.identities[digest]; exists {
			return nil, fmt.Errorf("static key entry %d: duplicate key", index+1)
		}
		validator.identities[digest] = identity
	}
	return validator, nil
}

// parseEntry errors never include the key itself.
func parseEntry(entry string) (string, Identity, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return "", Identity{}, fmt.Errorf("expected key:subject:role|role")
	}
	key := strings.TrimSpace(parts[0])
	subject := strings.TrimSpace(parts[1])
	if key == "" || subject == "" {
		return "", Identity{}, fmt.Errorf("empty key or subject")
	}

	roles := make([]string, 0, 2)
	for _, role := range strings.Split(parts[2], "|") {
		if role = strings.TrimSpace(role); role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("subject %q has no roles", subject)
	}
	slices.Sort(roles)
	return key, Identity{Subject: subject, Roles: roles}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	if apiKey == "" {
		return Identity{}, false
	}
	identity, ok := v.identities[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}
