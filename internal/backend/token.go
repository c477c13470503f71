package backend

import (
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"
)

var jwsSigAlgs = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.EdDSA,
}

// NewToken builds a bearer token pair. When the access token is a JWT its
// expiry is taken from the exp claim; the signature is not verified since the
// backend that issued it is the one validating it.
func NewToken(accessToken, refreshToken string) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	parsed, err := jwt.ParseSigned(accessToken, jwsSigAlgs)
	if err != nil {
		return token
	}

	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return token
	}

	if claims.Expiry != nil {
		token.Expiry = claims.Expiry.Time()
	}

	return token
}
