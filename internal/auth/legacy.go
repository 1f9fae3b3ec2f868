package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// LegacyIssuer is stamped on the HMAC tokens minted before the Zitadel
// migration. The fallback path only accepts tokens carrying it.
const LegacyIssuer = "flowreels-api"

// LegacyClaims represents pre-migration JWT claims (HMAC-signed tokens)
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateLegacyToken validates an HMAC token from the pre-Zitadel auth
// flow. The signing method and issuer are pinned so a Zitadel RS256 token
// can never be replayed through the fallback path.
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(LegacyIssuer),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
