package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyzr/workflowengine/pkg/task/security"
)

func TestURLValidator_AllowsOrdinaryHTTPS(t *testing.T) {
	v := security.NewURLValidator()
	assert.NoError(t, v.Validate("https://api.example.com/v1/widgets?id=42"))
}

func TestURLValidator_BlocksNonHTTPScheme(t *testing.T) {
	v := security.NewURLValidator()
	assert.Error(t, v.Validate("file:///etc/passwd"))
}

func TestURLValidator_BlocksLoopback(t *testing.T) {
	v := security.NewURLValidator()
	assert.Error(t, v.Validate("http://localhost:8080/internal"))
	assert.Error(t, v.Validate("http://127.0.0.1/internal"))
}

func TestURLValidator_BlocksPathTraversal(t *testing.T) {
	v := security.NewURLValidator()
	assert.Error(t, v.Validate("https://api.example.com/../../etc/passwd"))
}

func TestURLValidator_BlocksTraversalInQueryParam(t *testing.T) {
	v := security.NewURLValidator()
	assert.Error(t, v.Validate("https://api.example.com/fetch?path=../../etc/shadow"))
}

func TestURLValidator_AllowListBypassesHostBlock(t *testing.T) {
	v := security.NewURLValidator("localhost")
	assert.NoError(t, v.Validate("http://localhost:9090/fixture"))
}

func TestURLValidator_RejectsMalformedURL(t *testing.T) {
	v := security.NewURLValidator()
	assert.Error(t, v.Validate("http://%zz"))
}
