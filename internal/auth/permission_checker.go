package auth

// PermissionChecker answers flat RBAC questions against token claims.
type PermissionChecker interface {
	HasPermission(claims *Claims, permission string) bool
	HasAnyPermission(claims *Claims, required []string) bool
	HasAllPermissions(claims *Claims, required []string) bool
}

// DefaultPermissionChecker grants everything to superusers and otherwise
// consults the permission codes embedded at issuance.
type DefaultPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return &DefaultPermissionChecker{}
}

func (c *DefaultPermissionChecker) HasPermission(claims *Claims, permission string) bool {
	if claims == nil {
		return false
	}
	return claims.IsSuperuser || claims.HasPermission(permission)
}

func (c *DefaultPermissionChecker) HasAnyPermission(claims *Claims, required []string) bool {
	for _, p := range required {
		if c.HasPermission(claims, p) {
			return true
		}
	}
	return false
}

func (c *DefaultPermissionChecker) HasAllPermissions(claims *Claims, required []string) bool {
	if claims == nil {
		return false
	}
	for _, p := range required {
		if !c.HasPermission(claims, p) {
			return false
		}
	}
	return true
}
