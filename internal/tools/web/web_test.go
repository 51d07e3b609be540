package web

import (
	"net"
	"testing"

	"github.com/jkaninda/busara/internal/config"
)

func TestValidate(t *testing.T) {
	tool := NewTool(&config.WebToolConfig{AllowedDomains: []string{"example.com"}}, nil)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"allowed domain", map[string]any{"url": "https://example.com/page"}, false},
		{"head method", map[string]any{"url": "https://example.com", "method": "head"}, false},
		{"disallowed domain", map[string]any{"url": "https://evil.com"}, true},
		{"bad scheme", map[string]any{"url": "ftp://example.com"}, true},
		{"post method", map[string]any{"url": "https://example.com", "method": "POST"}, true},
		{"missing url", map[string]any{}, true},
		{"non-string url", map[string]any{"url": 42}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tool.Validate(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmptyAllowlistPermitsPublicDomains(t *testing.T) {
	tool := NewTool(nil, nil)
	if err := tool.Validate(map[string]any{"url": "https://golang.org"}); err != nil {
		t.Errorf("empty allowlist should permit public domains: %v", err)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.0.1", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"fc00::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
	}
	for _, tt := range tests {
		if got := IsPrivateIP(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("IsPrivateIP(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestIsDomainAllowed(t *testing.T) {
	allowed := []string{"Example.com", "api.service.io"}
	if !IsDomainAllowed("example.COM", allowed) {
		t.Error("comparison must be case-insensitive")
	}
	if IsDomainAllowed("sub.example.com", allowed) {
		t.Error("subdomains are not implicitly allowed")
	}
}
