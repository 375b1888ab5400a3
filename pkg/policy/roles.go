package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-queries/pkg/models"
)

// AnyRole in a role list matches every actor, including anonymous ones.
const AnyRole = "*"

// RoleRules restricts view and edit access by role. An empty list places no
// restriction.
type RoleRules struct {
	ViewRoles []string `yaml:"view_roles"`
	EditRoles []string `yaml:"edit_roles"`
}

// RolePolicyConfig is the on-disk format of a role policy file:
//
//	view_roles: ["*"]
//	edit_roles: [admin, data]
//	data_sources:
//	  finance:
//	    view_roles: [admin]
//
// A data source entry replaces the global list for each field it sets.
type RolePolicyConfig struct {
	RoleRules   `yaml:",inline"`
	DataSources map[string]RoleRules `yaml:"data_sources"`
}

// RolePolicy is a Provider driven by the acting user's roles.
type RolePolicy struct {
	cfg RolePolicyConfig
}

var _ Provider = (*RolePolicy)(nil)

// NewRolePolicy validates cfg and returns a RolePolicy.
func NewRolePolicy(cfg RolePolicyConfig) (*RolePolicy, error) {
	if err := validateRoles(cfg.RoleRules, "global"); err != nil {
		return nil, err
	}
	for ds, rules := range cfg.DataSources {
		if err := validateRoles(rules, "data source "+ds); err != nil {
			return nil, err
		}
	}
	return &RolePolicy{cfg: cfg}, nil
}

// LoadRolePolicy reads a YAML role policy file.
func LoadRolePolicy(path string) (*RolePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var cfg RolePolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	return NewRolePolicy(cfg)
}

func (p *RolePolicy) CanView(_ context.Context, q *models.Query, user *models.User) (bool, error) {
	return allows(p.rulesFor(q).ViewRoles, user), nil
}

func (p *RolePolicy) CanEdit(_ context.Context, q *models.Query, user *models.User) (bool, error) {
	return allows(p.rulesFor(q).EditRoles, user), nil
}

func (p *RolePolicy) rulesFor(q *models.Query) RoleRules {
	rules := p.cfg.RoleRules
	if override, ok := p.cfg.DataSources[q.DataSource]; ok {
		if len(override.ViewRoles) > 0 {
			rules.ViewRoles = override.ViewRoles
		}
		if len(override.EditRoles) > 0 {
			rules.EditRoles = override.EditRoles
		}
	}
	return rules
}

func allows(roles []string, user *models.User) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == AnyRole {
			return true
		}
	}
	return user.HasAnyRole(roles)
}

func validateRoles(rules RoleRules, scope string) error {
	for _, list := range [][]string{rules.ViewRoles, rules.EditRoles} {
		for _, r := range list {
			if r != AnyRole && !models.IsValidRole(r) {
				return fmt.Errorf("invalid role %q in %s rules", r, scope)
			}
		}
	}
	return nil
}
