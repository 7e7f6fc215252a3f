package model

// Principal is the identity resolved from a credential at authentication
// time. It is immutable for the lifetime of the request it was resolved for.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Team string `json:"team,omitempty"`

	// IsAdmin marks JWT-authenticated administrators, who bypass RBAC for
	// the system management API only. Proxy calls still go through RBAC.
	IsAdmin bool `json:"is_admin,omitempty"`
}

// Subject returns the rate-limit subject key for the principal: the team
// when one is set, otherwise the individual identity.
func (p Principal) Subject() string {
	if p.Team != "" {
		return p.Team
	}
	return p.ID
}
