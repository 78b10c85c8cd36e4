// Package security hardens the HTTP task executor against SSRF and local
// file access attempts when a request URL is built from template-resolved,
// caller-influenced input. Adapted from the teacher's
// cmd/http-worker/security package, which guarded the same concern for its
// Redis-stream HTTP worker.
package security

import (
	"fmt"
	"strings"
)

// ProtocolValidator restricts outbound requests to http/https.
type ProtocolValidator struct {
	allowedProtocols map[string]bool
}

func NewProtocolValidator() *ProtocolValidator {
	return &ProtocolValidator{
		allowedProtocols: map[string]bool{
			"http":  true,
			"https": true,
		},
	}
}

func (v *ProtocolValidator) Validate(scheme string) error {
	normalized := strings.ToLower(strings.TrimSpace(scheme))
	if normalized == "" {
		return fmt.Errorf("protocol scheme is required")
	}
	if !v.allowedProtocols[normalized] {
		return fmt.Errorf("protocol %q is not allowed (only http/https permitted)", scheme)
	}
	return nil
}

func (v *ProtocolValidator) GetBlockedProtocols() []string {
	return []string{
		"file://", "ftp://", "jdbc://", "mysql://", "postgres://",
		"mongodb://", "redis://", "ssh://", "telnet://", "ldap://",
		"dict://", "gopher://",
	}
}
