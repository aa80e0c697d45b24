package authz

import (
	"fmt"

	"github.com/dujiao-next/payin/internal/constants"
)

// RoleAuditor 只读审计角色
const RoleAuditor = "auditor"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role      string
	Inherits  []string
	Policies  []Policy
	Immutable bool
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: constants.RolePayerClient,
			Policies: []Policy{
				{Object: "/cart-payments", Action: "POST"},
				{Object: "/cart-payments/:id", Action: "GET"},
				{Object: "/cart-payments/:id/adjust", Action: "POST"},
			},
			Immutable: true,
		},
		{
			Role: RoleAuditor,
			Policies: []Policy{
				{Object: "/admin/cart-payments", Action: "GET"},
				{Object: "/admin/cart-payments/:id", Action: "GET"},
				{Object: "/admin/cart-payments/:id/history", Action: "GET"},
			},
			Immutable: true,
		},
		{
			Role:     constants.RoleOperator,
			Inherits: []string{constants.RolePayerClient, RoleAuditor},
			Policies: []Policy{
				{Object: "/admin/cart-payments/:id/capture", Action: "POST"},
				{Object: "/admin/cart-payments/:id/cancel", Action: "POST"},
				{Object: "/admin/cart-payments/:id/refund", Action: "POST"},
				{Object: "/admin/cart-payments/:id/reconcile", Action: "POST"},
				{Object: "/admin/authz/permissions/catalog", Action: "GET"},
			},
			Immutable: true,
		},
		{
			Role:     constants.RoleAdmin,
			Inherits: []string{constants.RoleOperator},
			Policies: []Policy{
				{Object: "/admin/api-clients", Action: "GET"},
				{Object: "/admin/api-clients/:id", Action: "GET"},
				{Object: "/admin/api-clients/:id/status", Action: "PUT"},
				{Object: "/admin/api-clients/:id/roles", Action: "PUT"},
				{Object: "/admin/authz/roles", Action: "GET"},
				{Object: "/admin/authz/roles/:role/policies", Action: "GET"},
				{Object: "/admin/authz/policies", Action: "POST"},
				{Object: "/admin/authz/policies", Action: "DELETE"},
				{Object: "/admin/authz/reload", Action: "POST"},
			},
			Immutable: true,
		},
	}
}

// isImmutableSeedPolicy 判断策略是否属于不可撤销的预置角色
func isImmutableSeedPolicy(role, object, action string) bool {
	for _, seed := range BuiltinRoleSeeds() {
		if !seed.Immutable {
			continue
		}
		seedRole, err := NormalizeRole(seed.Role)
		if err != nil || seedRole != role {
			continue
		}
		for _, policy := range seed.Policies {
			if NormalizeObject(policy.Object) == object && NormalizeAction(policy.Action) == action {
				return true
			}
		}
	}
	return false
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}

	changed := false
	for _, seed := range BuiltinRoleSeeds() {
		role, err := NormalizeRole(seed.Role)
		if err != nil {
			return err
		}

		exists, err := s.enforcer.HasNamedGroupingPolicy("g", role, roleAnchor)
		if err != nil {
			return fmt.Errorf("check builtin role failed: %w", err)
		}
		if !exists {
			added, err := s.enforcer.AddNamedGroupingPolicy("g", role, roleAnchor)
			if err != nil {
				return fmt.Errorf("create builtin role failed: %w", err)
			}
			if added {
				changed = true
			}
		}

		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			added, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole)
			if err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
			if added {
				changed = true
			}
		}

		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy action is required")
			}
			added, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action)
			if err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
			if added {
				changed = true
			}
		}
	}

	if changed {
		return s.saveAndReload()
	}
	return nil
}
