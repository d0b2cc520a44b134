package models

import (
	"testing"
)

func TestConnection_Validate(t *testing.T) {
	tests := []struct {
		name    string
		conn    Connection
		wantURL string
		wantErr bool
	}{
		{"default base", Connection{KeyID: "k", PrivateKeyFile: "key.pem"}, "https://intersight.com", false},
		{"trailing slash", Connection{BaseURL: "https://appliance.lab.local/", KeyID: "k", PrivateKeyFile: "key.pem"}, "https://appliance.lab.local", false},
		{"bad scheme", Connection{BaseURL: "ftp://x", KeyID: "k", PrivateKeyFile: "key.pem"}, "", true},
		{"missing key id", Connection{PrivateKeyFile: "key.pem"}, "", true},
		{"missing key file", Connection{KeyID: "k"}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conn.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("Validate() returned nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if tc.conn.BaseURL != tc.wantURL {
				t.Errorf("BaseURL = %q, want %q", tc.conn.BaseURL, tc.wantURL)
			}
		})
	}
}

func TestConnection_APIURL(t *testing.T) {
	c := Connection{BaseURL: "https://intersight.com"}
	tests := []struct {
		path   string
		expect string
	}{
		{"compute/PhysicalSummaries", "https://intersight.com/api/v1/compute/PhysicalSummaries"},
		{"/bios/Policies", "https://intersight.com/api/v1/bios/Policies"},
		{"/api/v1/server/Profiles", "https://intersight.com/api/v1/server/Profiles"},
	}
	for _, tc := range tests {
		if got := c.APIURL(tc.path); got != tc.expect {
			t.Errorf("APIURL(%q) = %q, want %q", tc.path, got, tc.expect)
		}
	}
	if got := c.Host(); got != "intersight.com" {
		t.Errorf("Host() = %q, want intersight.com", got)
	}
}

func TestMaskedKeyID(t *testing.T) {
	tests := []struct {
		name   string
		keyID  string
		expect string
	}{
		{"long", "59c84e4a16267c0001c23428/59c84e4a16267c0001c23429/5a0cf3a8", "••••••••f3a8"},
		{"short", "abc", "•••"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &Connection{KeyID: tc.keyID}
			if got := c.MaskedKeyID(); got != tc.expect {
				t.Errorf("MaskedKeyID() = %q, want %q", got, tc.expect)
			}
		})
	}
}
