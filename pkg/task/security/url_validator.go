package security

import (
	"fmt"
	"net/url"
)

// URLValidator orchestrates protocol, host (SSRF), path, and query-param
// validation for a single outbound request URL, run once per HTTP task
// invocation, before its first attempt is dispatched.
type URLValidator struct {
	protocolValidator *ProtocolValidator
	hostValidator     *HostValidator
	pathValidator     *PathValidator
}

// NewURLValidator builds a validator with an optional allow-list of
// hostnames that may bypass the SSRF host/IP checks.
func NewURLValidator(allowedHosts ...string) *URLValidator {
	return &URLValidator{
		protocolValidator: NewProtocolValidator(),
		hostValidator:     NewHostValidator(allowedHosts...),
		pathValidator:     NewPathValidator(),
	}
}

func (v *URLValidator) Validate(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if err := v.protocolValidator.Validate(parsed.Scheme); err != nil {
		return fmt.Errorf("protocol validation failed: %w", err)
	}
	if err := v.hostValidator.Validate(parsed.Hostname()); err != nil {
		return fmt.Errorf("host validation failed: %w", err)
	}
	if err := v.pathValidator.Validate(parsed.Path); err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	if err := v.validateQueryParams(parsed.Query()); err != nil {
		return fmt.Errorf("query parameter validation failed: %w", err)
	}
	return nil
}

func (v *URLValidator) validateQueryParams(params url.Values) error {
	for key, values := range params {
		for _, value := range values {
			if err := v.pathValidator.Validate(value); err != nil {
				return fmt.Errorf("query parameter %q contains a dangerous pattern: %w", key, err)
			}
		}
	}
	return nil
}
