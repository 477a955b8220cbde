// Package relayauth issues and verifies the service-to-service JWT used
// by the cloud relay transport's handshake — a distinct concern from the
// opaque, hashed user bearer tokens in internal/userstore. Grounded on
// the teacher's auth.AuthModule JWT usage, repurposed from user sessions
// to agent/relay identity.
package relayauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// IssueAgentToken mints a JWT identifying agentID for the relay
// handshake described in SPEC_FULL.md's cloud-relay transport.
func (i *Issuer) IssueAgentToken(agentID string) (string, error) {
	claims := jwt.MapClaims{
		"agent_id": agentID,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(i.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) VerifyAgentToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("relayauth: unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("relayauth: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("relayauth: invalid token")
	}
	agentID, ok := claims["agent_id"].(string)
	if !ok {
		return "", errors.New("relayauth: missing agent_id claim")
	}
	return agentID, nil
}

// HashServiceSecret and VerifyServiceSecret protect the long-lived shared
// secret each agent uses to bootstrap its relay JWT, using bcrypt the way
// the teacher uses it for user passwords — the relay's identity story is
// service accounts, not end users, so bcrypt lands here instead.
func HashServiceSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyServiceSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
