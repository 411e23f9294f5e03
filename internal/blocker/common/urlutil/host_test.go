package urlutil

import "testing"

func TestCanonicalHost(t *testing.T) {
	tests := []struct {
		name, input, expected string
	}{
		{"plain", "example.com", "example.com"},
		{"uppercase", "EXAMPLE.COM", "example.com"},
		{"trailing dot", "example.com.", "example.com"},
		{"multiple trailing dots", "example.com..", "example.com"},
		{"whitespace", "  WwW.Example.com  ", "www.example.com"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalHost(tt.input); got != tt.expected {
				t.Errorf("CanonicalHost(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestHostname(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"https://M.Facebook.com/feed", "m.facebook.com", false},
		{"http://example.com:8080/x", "example.com", false},
		{"http://[::1]:80/", "::1", false},
		{"file:///etc/hosts", "", false},
		{"example.com/path", "", true},
		{"://bad", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := Hostname(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Hostname(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Hostname(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Hostname(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestApexDomain(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"www.example.com", "example.com"},
		{"m.facebook.com.", "facebook.com"},
		{"www.example.co.uk", "example.co.uk"},
		{"subdomain.user.github.io", "user.github.io"},
		{"localhost", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ApexDomain(tt.input); got != tt.expected {
			t.Errorf("ApexDomain(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestValidSite(t *testing.T) {
	tests := []struct {
		site string
		want bool
	}{
		{"facebook.com", true},
		{"https://facebook.com/feed", true},
		{"*.example.com", true},
		{"*ab", true},
		{"localhost", true},
		{"ab", false},
		{"   ", false},
		{"not a site", false},
		{"bad site.com", true}, // contains a dot
		{"-bad-", false},
	}
	for _, tt := range tests {
		if got := ValidSite(tt.site); got != tt.want {
			t.Errorf("ValidSite(%q) = %v, want %v", tt.site, got, tt.want)
		}
	}
}
