package security

import (
	"fmt"
	"net"
	"strings"
)

// HostValidator validates hostnames and their resolved IPs for SSRF
// protection, with an explicit allow-list escape hatch for tasks that
// intentionally target an otherwise-blocked host (e.g. an internal test
// fixture reachable only on a private network).
type HostValidator struct {
	blockedHostnames []string
	allowedHosts     map[string]bool
	ipValidator      *IPValidator
}

func NewHostValidator(allowedHosts ...string) *HostValidator {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[strings.ToLower(h)] = true
	}
	return &HostValidator{
		blockedHostnames: []string{
			"localhost", "127.0.0.1", "::1", "0.0.0.0", "::",
			"::ffff:127.0.0.1", "[::1]", "[::ffff:127.0.0.1]",
		},
		allowedHosts: allowed,
		ipValidator:  NewIPValidator(),
	}
}

func (v *HostValidator) Validate(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}

	normalized := strings.ToLower(strings.TrimSpace(hostname))
	if v.allowedHosts[normalized] {
		return nil
	}

	for _, blocked := range v.blockedHostnames {
		if normalized == blocked {
			return fmt.Errorf("hostname %q is blocked (SSRF protection: loopback access)", hostname)
		}
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// DNS failure: let the HTTP attempt itself fail rather than
		// misclassify a transient resolver issue as a security block.
		return nil
	}
	return v.ipValidator.ValidateAll(ips)
}

func (v *HostValidator) GetBlockedExamples() []string {
	return []string{
		"localhost (loopback)",
		"127.0.0.1 (loopback IPv4)",
		"::1 (loopback IPv6)",
		"0.0.0.0 (unspecified)",
		"10.0.0.1 (private network)",
		"172.16.0.1 (private network)",
		"192.168.1.1 (private network)",
		"169.254.169.254 (link-local, cloud metadata service)",
		"fd00::1 (private IPv6)",
	}
}
