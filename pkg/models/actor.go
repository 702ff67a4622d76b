package models

import "sitewarehouse/pkg/roles"

// Actor is the authenticated user on whose behalf a workflow operation runs.
type Actor struct {
	UserID           int        `json:"user_id"`
	Role             roles.Role `json:"role"`
	CurrentProjectID *int       `json:"current_project_id,omitempty"`
}
