// Package auth loads the bearer credential used to open live-update connections.
package auth

import (
	"fmt"
	"os"
	"strings"
)

// Credentials holds the token and tenant sent as connection query parameters.
type Credentials struct {
	Token    string
	TenantID string // Optional; scopes the stream to one tenant
}

// Setter receives credentials. *connection.Manager implements it.
type Setter interface {
	SetAuth(token, tenantID string)
}

// LoadCredentials builds credentials from an inline token or, when token is
// empty, from the file at tokenPath. Surrounding whitespace is trimmed.
// With neither set the credentials are anonymous and add no query parameters.
func LoadCredentials(token, tokenPath, tenantID string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" && tokenPath != "" {
		data, err := os.ReadFile(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
		if token == "" {
			return nil, fmt.Errorf("token file %s is empty", tokenPath)
		}
	}
	return &Credentials{
		Token:    token,
		TenantID: strings.TrimSpace(tenantID),
	}, nil
}

// Anonymous reports whether no token is configured.
func (c *Credentials) Anonymous() bool {
	return c.Token == ""
}

// Apply installs the credentials on s. They take effect on the next connect.
func (c *Credentials) Apply(s Setter) {
	s.SetAuth(c.Token, c.TenantID)
}

// Redacted returns the token with all but its last four characters masked.
func (c *Credentials) Redacted() string {
	if len(c.Token) <= 4 {
		return strings.Repeat("*", len(c.Token))
	}
	return strings.Repeat("*", len(c.Token)-4) + c.Token[len(c.Token)-4:]
}

// String implements fmt.Stringer without exposing the token.
func (c *Credentials) String() string {
	if c.TenantID == "" {
		return "token=" + c.Redacted()
	}
	return "token=" + c.Redacted() + " tenant=" + c.TenantID
}
