package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedbridge/fedbridge/pkg/config"
)

func testUserConfig() config.UserConfig {
	return config.UserConfig{
		Roles:              "agent,admin,supervisor",
		DefaultDisplayName: "OAuth User",
	}
}

func TestNewUserFromClaims(t *testing.T) {
	tests := []struct {
		name         string
		claims       map[string]interface{}
		subject      string
		wantEmail    string
		wantFullName string
	}{
		{
			name:         "email and name present",
			claims:       map[string]interface{}{"email": "a@b.com", "name": "A B"},
			subject:      "sub-1",
			wantEmail:    "a@b.com",
			wantFullName: "A B",
		},
		{
			name:         "email missing falls back to sub claim",
			claims:       map[string]interface{}{"sub": "user-42", "name": "A B"},
			subject:      "token-subject",
			wantEmail:    "user-42",
			wantFullName: "A B",
		},
		{
			name:         "no email or sub claim falls back to token subject",
			claims:       map[string]interface{}{},
			subject:      "token-subject",
			wantEmail:    "token-subject",
			wantFullName: "OAuth User",
		},
		{
			name:         "non-string email claim is ignored",
			claims:       map[string]interface{}{"email": 42, "sub": "user-42"},
			subject:      "token-subject",
			wantEmail:    "user-42",
			wantFullName: "OAuth User",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := NewUserFromClaims(tt.claims, tt.subject, testUserConfig())
			assert.Equal(t, tt.wantEmail, user.Email)
			assert.Equal(t, tt.wantFullName, user.FullName)
			assert.Equal(t, "agent,admin,supervisor", user.Roles)
		})
	}
}

func TestNewUserFromClaimsAppliesDefaults(t *testing.T) {
	cfg := testUserConfig()
	cfg.Defaults = config.AttributeDefaults{
		Department: "Support",
		Location:   "Remote",
		Phone:      "+15550100",
	}

	user := NewUserFromClaims(map[string]interface{}{
		"email":        "a@b.com",
		"picture":      "https://cdn.example.com/a.png",
		"phone_number": "+15550199",
	}, "sub-1", cfg)

	assert.Equal(t, "Support", user.Department)
	assert.Equal(t, "Remote", user.Location)
	assert.Equal(t, "https://cdn.example.com/a.png", user.ImageURL)
	// Claim wins over the configured default
	assert.Equal(t, "+15550199", user.Phone)
}

func TestUserAttributesSkipAbsentFields(t *testing.T) {
	user := &User{
		Email:    "a@b.com",
		FullName: "A B",
		Roles:    "agent",
		Location: "Remote",
	}

	attributes := user.Attributes()

	names := make([]string, 0, len(attributes))
	for _, attribute := range attributes {
		names = append(names, attribute.Name)
		assert.NotEmpty(t, attribute.Value)
		assert.Equal(t, "string", attribute.Type)
	}
	assert.Equal(t, []string{"email", "full_name", "roles", "location"}, names)
}
