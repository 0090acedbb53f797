// Package identity holds the user record shared by the session, verifier and OAuth layers.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role drives authorization and the post-login landing page.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleVendor Role = "vendor"
	RoleStaff  Role = "staff"
	RoleUser   Role = "user"
)

// Landing paths on the storefront frontend.
const (
	AdminDashboardPath  = "/admin-dashboard"
	VendorDashboardPath = "/vendor-dashboard"
	HomePath            = "/"
)

// ParseRole normalizes a role string; unknown values map to RoleUser.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleVendor:
		return RoleVendor
	case RoleStaff:
		return RoleStaff
	default:
		return RoleUser
	}
}

// RedirectPath returns the landing page for a freshly signed-in user with the given role.
func RedirectPath(role Role) string {
	switch role {
	case RoleAdmin:
		return AdminDashboardPath
	case RoleVendor:
		return VendorDashboardPath
	default:
		return HomePath
	}
}

// ID is a user identifier. The storefront API emits both numeric and string ids, so both
// decode into the same string form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity: id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// User is the signed-in account as the storefront sees it. It is always replaced as a
// whole, never patched field by field.
type User struct {
	ID             ID     `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	IsVerified     bool   `json:"isVerified"`
	Provider       string `json:"provider,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// HasRole reports whether the user holds one of roles.
func (u User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// Profile is the loose shape returned by the storefront API and embedded in OAuth
// payloads. Field names differ between endpoints and providers.
type Profile struct {
	UserID         ID     `json:"userId"`
	ID             ID     `json:"id"`
	MongoID        ID     `json:"_id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	IsVerified     bool   `json:"isVerified"`
	Provider       string `json:"provider"`
	ProfilePicture string `json:"profilePicture"`
	Picture        string `json:"picture"`
	Avatar         string `json:"avatar"`
}

// User normalizes the profile. ok is false when no identifier is present.
func (p Profile) User() (User, bool) {
	id := firstNonEmpty(string(p.UserID), string(p.ID), string(p.MongoID))
	if id == "" {
		return User{}, false
	}

	username := firstNonEmpty(p.Username, p.Name)
	if username == "" {
		username, _, _ = strings.Cut(p.Email, "@")
	}

	return User{
		ID:             ID(id),
		Username:       username,
		Email:          p.Email,
		Role:           ParseRole(p.Role),
		IsVerified:     p.IsVerified,
		Provider:       p.Provider,
		ProfilePicture: firstNonEmpty(p.ProfilePicture, p.Picture, p.Avatar),
	}, true
}

// DecodeUser parses a user record from JSON in either the stored User shape or any API
// Profile shape.
func DecodeUser(data []byte) (User, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return User{}, fmt.Errorf("identity: decode user: %w", err)
	}
	u, ok := p.User()
	if !ok {
		return User{}, fmt.Errorf("identity: decode user: missing id")
	}
	return u, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
