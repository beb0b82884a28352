package auth

// Evaluate decides whether the caller may reach an endpoint requiring the
// given role tiers and abilities. superAdmin always passes. Ability codes
// match by exact equality only; there is no wildcard expansion.
func Evaluate(claims AccessClaims, requiredRoles []RoleType, requiredAbilities []Ability) error {
	if claims.RoleType == RoleSuperAdmin {
		return nil
	}
	if len(requiredRoles) > 0 {
		member := false
		for _, r := range requiredRoles {
			if claims.RoleType == r {
				member = true
				break
			}
		}
		if !member {
			return ErrRoleForbidden
		}
	}
	for _, required := range requiredAbilities {
		if !claims.HasAbility(required.Subject, required.Action) {
			return ErrAbilityForbidden
		}
	}
	return nil
}
