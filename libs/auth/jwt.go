package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RoleProvider = "Provider"
	RoleCustomer = "Customer"
)

// Claims identify the caller. ProfileID is the provider or customer record
// the token was minted for; Subject is the user account.
type Claims struct {
	Role      string `json:"role"`
	ProfileID string `json:"profile_id"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret and, when a JWKS
// client is configured, RS256 tokens against the published keys.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	parser *jwt.Parser
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if jwks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	return &Verifier{
		secret: []byte(secret),
		jwks:   jwks,
		parser: jwt.NewParser(
			jwt.WithValidMethods(methods),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	var claims Claims
	parsed, err := v.parser.ParseWithClaims(token, &claims, v.keyFunc)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ProfileID == "" {
		return nil, fmt.Errorf("%w: missing subject or profile", ErrInvalidToken)
	}
	return &claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 secret not configured")
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA:
		if v.jwks == nil {
			return nil, errors.New("jwks not configured")
		}
		kid, _ := t.Header["kid"].(string)
		return v.jwks.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}

// SignHS256 mints a token. The service itself never issues tokens; this is
// used by tests and local tooling.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
