package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// decodeTokenLifetime attempts a best-effort structured decode of an access
// token's iat/exp claims. The signature is deliberately not verified: the
// token was issued by the aggregator for its own API and we only want its
// embedded lifetime. Opaque or malformed tokens report ok=false and the
// caller falls back to stored metadata.
func decodeTokenLifetime(accessToken string) (issuedAt, expiresAt time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, time.Time{}, false
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return time.Time{}, time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, time.Time{}, false
	}

	return iat.Time, exp.Time, true
}
