package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the capability a part-upload token carries. A holder may upload
// exactly one part of one session; the endpoint verifies the signature and
// needs no store lookup.
type Claims struct {
	FileID     string `json:"fid"`
	PartNumber int    `json:"pn"`
	SessionID  string `json:"sid"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HMAC-signed part-upload tokens.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(fileID string, partNumber int, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		FileID:     fileID,
		PartNumber: partNumber,
		SessionID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Signer) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid part token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid part token")
	}
	return claims, nil
}
