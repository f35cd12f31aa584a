// Package policy decides which roles may perform which ledger actions.
// Decisions are evaluated in memory against a fixed rule set.
package policy

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/baharkarakas/credits-backend/internal/models"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

const (
	ObjectCredits = "credits"
	ObjectRoles   = "roles"
	ObjectPools   = "sales_pools"
	ObjectUsers   = "users"

	ActionAllocate = "allocate"
	ActionAdjust   = "adjust"
	ActionChange   = "change"
	ActionFund     = "fund"
	ActionDelete   = "delete"
)

var rules = [][]string{
	{string(models.RoleSales), ObjectCredits, ActionAllocate},
	{string(models.RoleAdmin), ObjectCredits, ActionAllocate},
	{string(models.RoleAdmin), ObjectCredits, ActionAdjust},
	{string(models.RoleAdmin), ObjectRoles, ActionChange},
	{string(models.RoleAdmin), ObjectPools, ActionFund},
	{string(models.RoleAdmin), ObjectUsers, ActionDelete},
}

type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func New() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("policy model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("policy enforcer: %w", err)
	}
	for _, r := range rules {
		if _, err := e.AddPolicy(r[0], r[1], r[2]); err != nil {
			return nil, fmt.Errorf("seed policy %v: %w", r, err)
		}
	}
	return &Policy{enforcer: e}, nil
}

// MustNew panics if the built-in rule set fails to load.
func MustNew() *Policy {
	p, err := New()
	if err != nil {
		panic(err)
	}
	return p
}

// Allowed reports whether role may perform act on obj. Unknown roles and
// evaluation errors deny.
func (p *Policy) Allowed(role models.Role, obj, act string) bool {
	ok, err := p.enforcer.Enforce(string(role), obj, act)
	return err == nil && ok
}

func (p *Policy) CanAllocate(role models.Role) bool {
	return p.Allowed(role, ObjectCredits, ActionAllocate)
}

func (p *Policy) CanChangeRole(role models.Role) bool {
	return p.Allowed(role, ObjectRoles, ActionChange)
}

func (p *Policy) CanAdjust(role models.Role) bool {
	return p.Allowed(role, ObjectCredits, ActionAdjust)
}

func (p *Policy) CanFundPool(role models.Role) bool {
	return p.Allowed(role, ObjectPools, ActionFund)
}

func (p *Policy) CanDeactivateUser(role models.Role) bool {
	return p.Allowed(role, ObjectUsers, ActionDelete)
}
