package retell

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// NewCredential extracts what a call client needs from a provisioning
// response. Access tokens issued for web calls are usually JWTs; when one
// is, its exp claim becomes ExpiresAt. The signature is not checked: the
// token is only forwarded, never trusted here.
func NewCredential(call *WebCall) *Credential {
	cred := &Credential{
		AccessToken: call.AccessToken,
		CallID:      call.CallID,
	}
	if exp, ok := tokenExpiry(call.AccessToken); ok {
		cred.ExpiresAt = exp
	}
	return cred
}

func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, ok := getFloat64(claims, "exp")
	if !ok || exp <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}

// Expired reports whether the credential is known to have expired.
func (c *Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// TTL is the remaining lifetime, zero when expired or unknown.
func (c *Credential) TTL() time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(c.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
