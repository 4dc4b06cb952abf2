package urlvalidation

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func fakeLookup(table map[string][]string) Option {
	return WithLookup(func(_ context.Context, host string) ([]string, error) {
		if addrs, ok := table[host]; ok {
			return addrs, nil
		}
		return nil, errors.New("no such host")
	})
}

func TestValidate(t *testing.T) {
	lookup := fakeLookup(map[string][]string{
		"gateway.example.com": {"93.184.216.34"},
		"localhost":           {"127.0.0.1", "::1"},
		"mixed.example.com":   {"93.184.216.34", "10.1.2.3"},
	})

	tests := []struct {
		name       string
		url        string
		wantErr    bool
		disallowed bool
	}{
		{name: "https", url: "https://gateway.example.com/send"},
		{name: "http", url: "http://gateway.example.com/send"},
		{name: "public literal", url: "http://8.8.8.8/"},
		{name: "localhost", url: "http://localhost/send", wantErr: true, disallowed: true},
		{name: "loopback literal", url: "http://127.0.0.1/send", wantErr: true, disallowed: true},
		{name: "one private answer", url: "https://mixed.example.com/", wantErr: true, disallowed: true},
		{name: "ipv6 loopback", url: "http://[::1]/send", wantErr: true, disallowed: true},
		{name: "ftp scheme", url: "ftp://gateway.example.com/", wantErr: true, disallowed: true},
		{name: "no scheme", url: "gateway.example.com/send", wantErr: true, disallowed: true},
		{name: "empty host", url: "http:///path", wantErr: true, disallowed: true},
		{name: "unresolvable", url: "https://nowhere.invalid/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(t.Context(), tt.url, lookup)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if errors.Is(err, ErrDisallowed) != tt.disallowed {
				t.Fatalf("Validate(%q) error = %v, disallowed %v", tt.url, err, tt.disallowed)
			}
		})
	}
}

func TestAllowPrivateIPs(t *testing.T) {
	if err := Validate(t.Context(), "http://127.0.0.1:8080/send", AllowPrivateIPs()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(t.Context(), "file:///etc/passwd", AllowPrivateIPs()); err == nil {
		t.Fatal("scheme check skipped")
	}
}

func TestReserved(t *testing.T) {
	tests := []struct {
		ip       string
		reserved bool
	}{
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.0", false},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"::ffff:127.0.0.1", true},
		{"169.254.1.1", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"255.255.255.255", true},
		{"2606:4700:4700::1111", false},
		{"fe80::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := Reserved(netip.MustParseAddr(tt.ip)); got != tt.reserved {
				t.Errorf("Reserved(%s) = %v, want %v", tt.ip, got, tt.reserved)
			}
		})
	}
}
