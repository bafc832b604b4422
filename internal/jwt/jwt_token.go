package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const DefaultTTL = 12 * time.Hour

// Issuer signs and verifies operator tokens with one HMAC secret per role.
type Issuer struct {
	secrets map[Role][]byte
	ttl     time.Duration
	now     func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return NewIssuerWithClock(secret, ttl, time.Now)
}

func NewIssuerWithClock(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secrets: map[Role][]byte{RoleOperator: []byte(secret)},
		ttl:     ttl,
		now:     now,
	}
}

func appendRoleChar(token string, role Role) string {
	switch role {
	case RoleOperator:
		return token + "o"
	}
	return token
}

func expectedRoleChar(role Role) string {
	switch role {
	case RoleOperator:
		return "o"
	}
	return ""
}

func (i *Issuer) secret(role Role) ([]byte, error) {
	secret, ok := i.secrets[role]
	if !ok || len(secret) == 0 {
		return nil, fmt.Errorf("invalid role specified")
	}
	return secret, nil
}

// CreateToken signs a token for userID. A zero validUntil uses the issuer TTL.
func (i *Issuer) CreateToken(userID int64, role Role, validUntil int64) (TokenResponse, error) {
	secret, err := i.secret(role)
	if err != nil {
		return TokenResponse{}, err
	}

	if validUntil == 0 {
		validUntil = i.now().Add(i.ttl).Unix()
	}

	claims := jwt.MapClaims{
		"id":  userID,
		"exp": validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken: appendRoleChar(tokenString, role),
		ExpiresAt:   validUntil,
	}, nil
}

// IssueConsoleToken returns an operator access token for the live console.
func (i *Issuer) IssueConsoleToken(userID int64) (string, error) {
	res, err := i.CreateToken(userID, RoleOperator, 0)
	if err != nil {
		return "", err
	}
	return res.AccessToken, nil
}

// ParseToken checks the role char, the signature and the expiry.
func (i *Issuer) ParseToken(tokenString string, role Role) (Claims, error) {
	if len(tokenString) == 0 {
		return Claims{}, fmt.Errorf("token string is empty")
	}

	if tokenString[len(tokenString)-1:] != expectedRoleChar(role) {
		return Claims{}, fmt.Errorf("invalid role character in token")
	}
	tokenString = tokenString[:len(tokenString)-1]

	secret, err := i.secret(role)
	if err != nil {
		return Claims{}, err
	}

	parser := &jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("unauthorized: %v", err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("token is not valid - unauthorized")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("claims of unauthorized type")
	}

	id, ok := claims["id"].(float64)
	if !ok || id <= 0 {
		return Claims{}, fmt.Errorf("token has no user id")
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return Claims{}, fmt.Errorf("token has no expiry")
	}
	if i.now().Unix() > int64(exp) {
		return Claims{}, fmt.Errorf("token expired")
	}

	return Claims{UserID: int64(id), ExpiresAt: int64(exp)}, nil
}
