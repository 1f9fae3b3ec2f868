package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLegacySecret = "legacy-test-secret"

func mintLegacyToken(t *testing.T, method jwt.SigningMethod, issuer string) string {
	t.Helper()
	claims := LegacyClaims{
		UserID: "user-42",
		Email:  "user@flowreels.app",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testLegacySecret))
	require.NoError(t, err)
	return signed
}

func TestValidateLegacyToken(t *testing.T) {
	signed := mintLegacyToken(t, jwt.SigningMethodHS256, LegacyIssuer)

	claims, err := ValidateLegacyToken(signed, testLegacySecret)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "user@flowreels.app", claims.Email)
}

func TestValidateLegacyTokenRejectsWrongSecret(t *testing.T) {
	signed := mintLegacyToken(t, jwt.SigningMethodHS256, LegacyIssuer)

	_, err := ValidateLegacyToken(signed, "some-other-secret")
	assert.Error(t, err)
}

func TestValidateLegacyTokenRejectsForeignIssuer(t *testing.T) {
	signed := mintLegacyToken(t, jwt.SigningMethodHS256, "another-service")

	_, err := ValidateLegacyToken(signed, testLegacySecret)
	assert.Error(t, err)
}

func TestValidateLegacyTokenRejectsUnexpectedMethod(t *testing.T) {
	signed := mintLegacyToken(t, jwt.SigningMethodHS512, LegacyIssuer)

	_, err := ValidateLegacyToken(signed, testLegacySecret)
	assert.Error(t, err)
}

func TestClaimsHasRole(t *testing.T) {
	claims := &Claims{ProjectRoles: map[string]map[string]string{
		"creator": {"260242264622751234": "flow"},
	}}
	assert.True(t, claims.HasRole("creator"))
	assert.False(t, claims.HasRole("admin"))
}
