package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessPassIssuer mints short-lived signed passes for valid verdicts so
// the site can gate premium content without re-reading the token store on
// every page view.
type AccessPassIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAccessPassIssuer(secret string, ttl time.Duration) (*AccessPassIssuer, error) {
	if secret == "" {
		return nil, errors.New("access pass secret empty")
	}
	return &AccessPassIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Mint signs a pass for a subject (token code or email) and tier.
func (i *AccessPassIssuer) Mint(subject, tier string) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"tier": tier,
		"iat":  now.Unix(),
		"exp":  now.Add(i.ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access pass: %w", err)
	}
	return signed, nil
}

// Verify parses a pass and returns its subject and tier.
func (i *AccessPassIssuer) Verify(pass string) (subject, tier string, err error) {
	tok, err := jwt.Parse(pass, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", "", errors.New("invalid access pass")
	}
	subject, _ = claims["sub"].(string)
	tier, _ = claims["tier"].(string)
	return subject, tier, nil
}
