package models

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the SaaS endpoint used when no base URL is configured.
const DefaultBaseURL = "https://intersight.com"

// Connection describes how to reach and authenticate against Intersight.
type Connection struct {
	BaseURL        string `json:"base_url"`
	KeyID          string `json:"key_id"`
	PrivateKeyFile string `json:"private_key_file"`
	Insecure       bool   `json:"insecure"` // skip TLS verification
	CACert         string `json:"-"`        // PEM bundle for private appliances
}

// Validate normalises the base URL and checks the required fields.
func (c *Connection) Validate() error {
	base := strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("invalid base URL %q: must be http(s)://host", c.BaseURL)
	}
	c.BaseURL = base
	if strings.TrimSpace(c.KeyID) == "" {
		return fmt.Errorf("API key ID is required (INTERSIGHT_API_KEY_ID)")
	}
	if strings.TrimSpace(c.PrivateKeyFile) == "" {
		return fmt.Errorf("private key file is required (INTERSIGHT_PRIVATE_KEY_FILE)")
	}
	return nil
}

// Host returns the host[:port] part of the base URL.
func (c *Connection) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// APIURL joins the base URL and an API path ("compute/PhysicalSummaries" or
// "/api/v1/compute/PhysicalSummaries").
func (c *Connection) APIURL(path string) string {
	if strings.HasPrefix(path, "/api/") {
		return c.BaseURL + path
	}
	return c.BaseURL + "/api/v1/" + strings.TrimPrefix(path, "/")
}

// MaskedKeyID shows only the last 4 characters of the key ID.
func (c *Connection) MaskedKeyID() string {
	if len(c.KeyID) <= 4 {
		return strings.Repeat("•", len(c.KeyID))
	}
	return strings.Repeat("•", 8) + c.KeyID[len(c.KeyID)-4:]
}
