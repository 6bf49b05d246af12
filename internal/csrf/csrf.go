// Package csrf implements the stateless double-submit cookie check.
//
// A token is issued into a cookie the first time a client is seen and stays
// stable for the session. State-changing requests must echo the same value
// through a header or a form field. No server-side registry of issued tokens
// is kept.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"apphub/internal/apperr"
)

// TokenBytes is the amount of entropy drawn for each token before encoding.
const TokenBytes = 32

var safeMethods = map[string]struct{}{
	"GET":     {},
	"HEAD":    {},
	"OPTIONS": {},
}

// IsSafeMethod reports whether method is read-only and bypasses verification.
// Method casing is ignored.
func IsSafeMethod(method string) bool {
	_, ok := safeMethods[strings.ToUpper(strings.TrimSpace(method))]
	return ok
}

// NewToken returns a URL-safe token drawn from crypto/rand.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Submission is what a request presented for verification.
type Submission struct {
	Method string
	Cookie string
	Header string
	Form   string
}

// Verify checks a submission. Safe methods always pass. Otherwise the cookie
// must be present, at least one of header or form must carry a token, and the
// supplied token (header preferred) must equal the cookie under constant-time
// comparison.
func Verify(s Submission) error {
	if IsSafeMethod(s.Method) {
		return nil
	}
	provided := s.Header
	if provided == "" {
		provided = s.Form
	}
	if s.Cookie == "" || provided == "" {
		return apperr.Security(apperr.CodeCSRFRejected, "missing csrf token")
	}
	if subtle.ConstantTimeCompare([]byte(s.Cookie), []byte(provided)) != 1 {
		return apperr.Security(apperr.CodeCSRFRejected, "invalid csrf token")
	}
	return nil
}
