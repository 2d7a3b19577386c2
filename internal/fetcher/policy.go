package fetcher

import (
	"fmt"
	"net"
	"net/url"
)

// Resolver resolves host names to IP addresses.
type Resolver func(host string) ([]net.IP, error)

// URLPolicy validates asset URLs before any request is issued.
// It is a mandatory anti-SSRF gate: only http/https schemes are accepted
// and hosts resolving to loopback, private, link-local, unspecified or
// multicast addresses are rejected.
type URLPolicy struct {
	resolve Resolver
}

// NewURLPolicy returns a URLPolicy using the system resolver.
func NewURLPolicy() URLPolicy {
	return URLPolicy{resolve: net.LookupIP}
}

// NewURLPolicyWithResolver returns a URLPolicy using a custom resolver.
func NewURLPolicyWithResolver(resolve Resolver) URLPolicy {
	return URLPolicy{resolve: resolve}
}

// Validate checks rawURL against the policy.
// It returns ErrSchemeNotAllowed or ErrHostNotAllowed wrapped with details.
func (p URLPolicy) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("can't parse url: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrSchemeNotAllowed, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrHostNotAllowed)
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	ips, err := p.resolve(host)
	if err != nil {
		return fmt.Errorf("can't resolve host %q: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("%w: host %q has no addresses", ErrHostNotAllowed, host)
	}

	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return err
		}
	}

	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsUnspecified(),
		ip.IsMulticast():
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, ip)
	}
	return nil
}
