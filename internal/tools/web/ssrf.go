package web

import (
	"fmt"
	"net"
	"strings"
)

// blockedCIDRs enumerates ranges the fetch tool must never reach: RFC 1918
// private space, link-local, carrier-grade NAT, and IPv6 unique-local.
var blockedCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("web: invalid blocked CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// CheckSSRF resolves host and rejects it when any resolved address falls in
// a blocked range. Resolution happens before the request so a DNS name
// cannot steer the client onto the local network.
func CheckSSRF(host string) error {
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return fmt.Errorf("invalid IP %q for host %q", ipStr, host)
		}
		if IsPrivateIP(ip) {
			return fmt.Errorf("SSRF blocked: host %q resolves to private address %s", host, ipStr)
		}
	}
	return nil
}

// IsPrivateIP reports whether ip is loopback, unspecified, link-local, or
// inside one of the blocked ranges.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range blockedCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsDomainAllowed reports whether host matches an allowlist entry exactly,
// ignoring case. Subdomains of allowed entries do not match.
func IsDomainAllowed(host string, allowedDomains []string) bool {
	for _, d := range allowedDomains {
		if strings.EqualFold(d, host) {
			return true
		}
	}
	return false
}
