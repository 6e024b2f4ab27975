package authservice

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/twinj/uuid"
)

// Tokenizer issues and verifies signed bearer tokens whose subject is a
// username.
type Tokenizer interface {
	Generate(subject string, ttl time.Duration) (string, error)
	// Subject returns the token's subject, or false for any token that is
	// malformed, forged, expired or has no subject.
	Subject(token string) (string, bool)
}

type tokenizer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenizer(secret string) Tokenizer {
	return &tokenizer{secret: []byte(secret), now: time.Now}
}

var signingMethod = jwt.SigningMethodHS256

func (t *tokenizer) Generate(subject string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewV4().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
}

func (t *tokenizer) Subject(token string) (string, bool) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return "", false
	}
	if claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
