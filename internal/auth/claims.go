package auth

import "time"

// RoleType is the coarse role tier carried by every access token.
type RoleType string

const (
	RoleUser       RoleType = "user"
	RoleAdmin      RoleType = "admin"
	RoleSuperAdmin RoleType = "superAdmin"
)

// Valid reports whether the role type is one of the known tiers.
func (r RoleType) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Ability is a fine-grained capability checked by exact equality.
type Ability struct {
	Subject string `json:"subject"`
	Action  string `json:"action"`
}

// AccessClaims is the verified payload of an access token. It is rebuilt
// fresh for every request and never mutated after authentication.
type AccessClaims struct {
	SubjectID string    `json:"subjectId"`
	RoleID    string    `json:"roleId"`
	RoleType  RoleType  `json:"roleType"`
	Abilities []Ability `json:"abilities"`
	LoginFrom string    `json:"loginFrom"`
	LoginAt   time.Time `json:"loginAt"`
	SessionID string    `json:"sessionId"`
	TokenID   string    `json:"tokenId"`
}

// HasAbility reports whether the claims carry the exact subject/action pair.
func (c AccessClaims) HasAbility(subject, action string) bool {
	for _, a := range c.Abilities {
		if a.Subject == subject && a.Action == action {
			return true
		}
	}
	return false
}
