package bridge

import (
	"github.com/fedbridge/fedbridge/pkg/config"
)

// User is the normalized identity asserted back to the SP. It is built
// fresh from OIDC claims on every callback and never cached.
type User struct {
	Email    string
	FullName string
	Roles    string

	// Optional profile fields; absent fields are skipped during attribute
	// serialization, not emitted as empty attributes.
	ImageURL   string
	Department string
	Location   string
	Manager    string
	Phone      string
	TeamID     string
	TeamName   string
}

// Attribute is one SAML attribute name/value pair
type Attribute struct {
	Name  string
	Value string
	Type  string
}

// NewUserFromClaims maps OIDC userinfo claims into a User. Email falls back
// to the subject when the provider omits it; the display name falls back to
// the configured default. Roles come from static configuration, not from
// the provider's claims.
func NewUserFromClaims(claims map[string]interface{}, subject string, cfg config.UserConfig) *User {
	email := stringClaim(claims, "email")
	if email == "" {
		email = stringClaim(claims, "sub")
	}
	if email == "" {
		email = subject
	}

	fullName := stringClaim(claims, "name")
	if fullName == "" {
		fullName = cfg.DefaultDisplayName
	}

	return &User{
		Email:      email,
		FullName:   fullName,
		Roles:      cfg.Roles,
		ImageURL:   stringClaim(claims, "picture"),
		Department: cfg.Defaults.Department,
		Location:   cfg.Defaults.Location,
		Manager:    cfg.Defaults.Manager,
		Phone:      stringOr(stringClaim(claims, "phone_number"), cfg.Defaults.Phone),
		TeamID:     cfg.Defaults.TeamID,
		TeamName:   cfg.Defaults.TeamName,
	}
}

// Attributes returns the present fields as SAML attributes, in a stable
// order. Absent optional fields produce no attribute at all.
func (u *User) Attributes() []Attribute {
	fields := []struct {
		name  string
		value string
	}{
		{"email", u.Email},
		{"full_name", u.FullName},
		{"roles", u.Roles},
		{"image_url", u.ImageURL},
		{"department", u.Department},
		{"location", u.Location},
		{"manager", u.Manager},
		{"phone", u.Phone},
		{"team_id", u.TeamID},
		{"team_name", u.TeamName},
	}

	attributes := make([]Attribute, 0, len(fields))
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		attributes = append(attributes, Attribute{
			Name:  field.name,
			Value: field.value,
			Type:  "string",
		})
	}
	return attributes
}

// stringClaim returns a string claim value, or empty for non-string values
func stringClaim(claims map[string]interface{}, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}

func stringOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
