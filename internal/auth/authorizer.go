package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/safar/dropshop/internal/models"
)

// Resources guarded by role checks.
const (
	ResourceCatalog = "catalog"
	ResourceOrders  = "orders"
	ResourceRaffles = "raffles"
	ResourceLoyalty = "loyalty"
	ResourceUsers   = "users"
	ResourceRoles   = "roles"
)

const (
	ActionManage = "manage"
	ActionAward  = "award"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var rolePolicies = [][]string{
	{string(models.RoleAdmin), ResourceCatalog, ActionManage},
	{string(models.RoleAdmin), ResourceOrders, ActionManage},
	{string(models.RoleAdmin), ResourceRaffles, ActionManage},
	{string(models.RoleAdmin), ResourceLoyalty, ActionAward},
	{string(models.RoleAdmin), ResourceUsers, ActionManage},
	{string(models.RoleSuperAdmin), ResourceRoles, ActionManage},
}

var roleInheritance = [][]string{
	{string(models.RoleSuperAdmin), string(models.RoleAdmin)},
	{string(models.RoleAdmin), string(models.RoleCustomer)},
}

// Authorizer answers role permission checks from a fixed in-memory policy.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	if _, err := enforcer.AddPolicies(rolePolicies); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(roleInheritance); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}

	return &Authorizer{enforcer: enforcer}, nil
}

// Can reports whether role may perform act on obj. Unknown roles are denied.
func (a *Authorizer) Can(role models.Role, obj, act string) (bool, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return false, nil
	}

	allowed, err := a.enforcer.Enforce(string(role), obj, act)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s %s: %w", role, obj, act, err)
	}
	return allowed, nil
}
