// Package auth gates the HTTP API behind static operator keys.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	// RoleAsk may ask questions and read the schema whitelist.
	RoleAsk = "ask"
	// RoleRecords may add, read and delete records.
	RoleRecords = "records"
)

type Identity struct {
	Operator string
	Roles    []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses "key:operator:role|role" entries separated
// by commas.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid api key entry %q: expected key:operator:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		operator := strings.TrimSpace(parts[1])
		if key == "" || operator == "" {
			return nil, fmt.Errorf("invalid api key entry %q: empty key/operator", entry)
		}
		roles := make([]string, 0, 2)
		for _, role := range strings.Split(strings.TrimSpace(parts[2]), "|") {
			role = strings.ToLower(strings.TrimSpace(role))
			if role == "" {
				continue
			}
			if role != RoleAsk && role != RoleRecords {
				return nil, fmt.Errorf("invalid api key entry %q: unknown role %q", entry, role)
			}
			roles = append(roles, role)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid api key entry %q: at least one role is required", entry)
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("duplicate api key for operator %q", operator)
		}
		sort.Strings(roles)
		validator.keys[key] = Identity{Operator: operator, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
