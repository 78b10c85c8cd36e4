package security

import (
	"fmt"
	"strings"
)

// PathValidator rejects URL paths and query values that attempt local file
// access or path traversal.
type PathValidator struct {
	blockedPatterns []string
}

func NewPathValidator() *PathValidator {
	return &PathValidator{
		blockedPatterns: []string{
			"file://", "../", "..\\", "/etc/", "/proc/", "/sys/",
			"c:/", "c:\\", "\\\\.\\pipe\\",
		},
	}
}

func (v *PathValidator) Validate(urlPath string) error {
	if urlPath == "" {
		return nil
	}
	normalized := strings.ToLower(urlPath)
	for _, pattern := range v.blockedPatterns {
		if strings.Contains(normalized, pattern) {
			return fmt.Errorf("path contains blocked pattern %q (file access attempt)", pattern)
		}
	}
	if v.containsEncodedAttack(normalized) {
		return fmt.Errorf("path contains URL-encoded traversal patterns")
	}
	return nil
}

func (v *PathValidator) containsEncodedAttack(path string) bool {
	encoded := []string{"%2e%2e/", "%2e%2e%2f", "..%2f", "%2e%2e\\", "%2e%2e%5c", "..%5c"}
	for _, pattern := range encoded {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

func (v *PathValidator) GetBlockedExamples() []string {
	return []string{
		"file:///etc/passwd (local file access)",
		"../../../etc/passwd (path traversal)",
		"/etc/shadow (system file access)",
		"/proc/self/environ (process info)",
		"c:/windows/system32 (Windows system)",
	}
}
