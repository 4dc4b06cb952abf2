// Package urlvalidation guards outbound endpoints configured by the operator
// (the SMS gateway and the IP geolocation service) against pointing the
// device at its own network.
package urlvalidation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var ErrDisallowed = errors.New("endpoint not allowed")

// Option configures validation.
type Option func(*options)

type options struct {
	allowPrivate bool
	lookup       func(ctx context.Context, host string) ([]string, error)
}

// AllowPrivateIPs disables the reserved address check, for local gateways
// and tests.
func AllowPrivateIPs() Option {
	return func(o *options) { o.allowPrivate = true }
}

// WithLookup replaces DNS resolution.
func WithLookup(fn func(ctx context.Context, host string) ([]string, error)) Option {
	return func(o *options) { o.lookup = fn }
}

var reserved = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Reserved reports whether addr is loopback, private, link-local or
// otherwise not publicly routable.
func Reserved(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range reserved {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Validate checks that rawURL is an http(s) endpoint whose host resolves
// only to public addresses.
func Validate(ctx context.Context, rawURL string, opts ...Option) error {
	o := options{lookup: net.DefaultResolver.LookupHost}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q, use http or https", ErrDisallowed, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrDisallowed)
	}
	if o.allowPrivate {
		return nil
	}

	var addrs []string
	if _, err := netip.ParseAddr(host); err == nil {
		addrs = []string{host}
	} else if addrs, err = o.lookup(ctx, host); err != nil {
		return fmt.Errorf("resolving %q: %w", host, err)
	}
	for _, a := range addrs {
		addr, err := netip.ParseAddr(a)
		if err != nil {
			continue
		}
		if Reserved(addr) {
			return fmt.Errorf("%w: %s resolves to reserved address %s", ErrDisallowed, host, a)
		}
	}
	return nil
}
