package research

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrBlockedTarget is returned for URLs that point at local or private hosts.
var ErrBlockedTarget = errors.New("target host is not allowed")

// TargetPolicy controls which hosts the page fetcher may reach.
type TargetPolicy struct {
	AllowLocalhost       bool
	AllowPrivateNetworks bool
}

// validateOutboundURL checks scheme and host before any request is made.
// Hostnames are resolved later; dialControl re-checks the resolved address.
func validateOutboundURL(raw string, policy TargetPolicy) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, fmt.Errorf("url host is required")
	}
	if !policy.AllowLocalhost && (host == "localhost" || strings.HasSuffix(host, ".localhost")) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedTarget, host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if err := policy.checkIP(ip); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

func (p TargetPolicy) checkIP(ip net.IP) error {
	if !p.AllowLocalhost && (ip.IsLoopback() || ip.IsUnspecified()) {
		return fmt.Errorf("%w: %s is local", ErrBlockedTarget, ip)
	}
	if !p.AllowPrivateNetworks && (ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()) {
		return fmt.Errorf("%w: %s is private", ErrBlockedTarget, ip)
	}
	return nil
}

// dialControl runs after DNS resolution, so it also covers hostnames and
// redirects that land on internal addresses.
func (p TargetPolicy) dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: unresolved address %s", ErrBlockedTarget, address)
	}
	return p.checkIP(ip)
}
