package domain

import "slices"

type UserID string

// Project is the collaborator-owned identity a room is scoped to.
type Project struct {
	ID             ProjectID `json:"id"`
	UserID         UserID    `json:"userId"`
	APIKey         string    `json:"-"`
	AllowedOrigins []string  `json:"allowedOrigins"`
}

// AllowsOrigin reports whether a browser origin may use this project's key.
// An empty origin (server-to-server call) is always allowed.
func (p *Project) AllowsOrigin(origin string) bool {
	if origin == "" || len(p.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(p.AllowedOrigins, "*") || slices.Contains(p.AllowedOrigins, origin)
}
