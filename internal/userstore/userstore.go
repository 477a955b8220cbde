// Package userstore implements user/token persistence and authentication:
// salted SHA-512 password hashing, hashed-at-rest tokens compared in
// constant time, and the push-button pairing state machine, grounded on
// usermanager.cpp with the fixes spec §4.G mandates over the original's
// plaintext-token and non-constant-time behavior.
package userstore

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"automationd/internal/ids"
	"automationd/internal/ruleerr"
)

var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateUsername requires an email-shaped string, matching the
// original's own constraint that usernames double as account emails.
func ValidateUsername(username string) bool {
	return emailShape.MatchString(username)
}

// ValidatePassword implements the textual password rule explicitly
// rather than translating the original's buggy `\[0-9]` pattern: at
// least 8 characters, at least one letter, one digit, and one symbol
// from a fixed set.
func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var hasLetter, hasDigit, hasSymbol bool
	const symbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(symbols, r):
			hasSymbol = true
		}
	}
	return hasLetter && hasDigit && hasSymbol
}

type User struct {
	Username string
	Email    string
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		display_username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS tokens (
		token_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		token_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		device_name TEXT
	)`)
	return err
}

func generateSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func hashPassword(password, salt string) string {
	sum := sha512.Sum512([]byte(password + salt))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha512.Sum512([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// CreateUser stores a new user keyed by the lowercased username but
// remembers the original-case string for display, matching the
// original's case-insensitive-lookup/original-case-storage behavior.
func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	if !ValidateUsername(username) {
		return fmt.Errorf("%w: username must be email-shaped", ruleerr.UserErrorBadUsernameOrPassword)
	}
	if !ValidatePassword(password) {
		return fmt.Errorf("%w: password does not satisfy policy", ruleerr.UserErrorBadUsernameOrPassword)
	}
	key := strings.ToLower(username)
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)", key).Scan(&exists); err != nil {
		return fmt.Errorf("userstore: check existing user: %w", err)
	}
	if exists {
		return ruleerr.UserErrorDuplicateUserId
	}
	salt, err := generateSalt()
	if err != nil {
		return fmt.Errorf("userstore: generate salt: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO users (username, display_username, password_hash, salt) VALUES ($1, $2, $3, $4)",
		key, username, hashPassword(password, salt), salt)
	return err
}

func (s *Store) RemoveUser(ctx context.Context, username string) error {
	key := strings.ToLower(username)
	tag, err := s.pool.Exec(ctx, "DELETE FROM users WHERE username=$1", key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ruleerr.UserErrorUsernameNotFound
	}
	_, err = s.pool.Exec(ctx, "DELETE FROM tokens WHERE username=$1", key)
	return err
}

// Authenticate verifies username/password and, on success, mints and
// stores a new token keyed by its hash — never the raw token.
func (s *Store) Authenticate(ctx context.Context, username, password, deviceName string) (string, error) {
	key := strings.ToLower(username)
	var passwordHash, salt string
	err := s.pool.QueryRow(ctx, "SELECT password_hash, salt FROM users WHERE username=$1", key).Scan(&passwordHash, &salt)
	if err != nil {
		return "", ruleerr.UserErrorBadUsernameOrPassword
	}
	candidate := hashPassword(password, salt)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(passwordHash)) != 1 {
		return "", ruleerr.UserErrorBadUsernameOrPassword
	}
	return s.issueToken(ctx, key, deviceName)
}

func (s *Store) issueToken(ctx context.Context, username, deviceName string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("userstore: generate token: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO tokens (token_id, username, token_hash, created_at, device_name) VALUES ($1, $2, $3, $4, $5)",
		ids.NewTokenId().String(), username, hashToken(token), time.Now(), deviceName)
	if err != nil {
		return "", fmt.Errorf("userstore: persist token: %w", err)
	}
	return token, nil
}

// VerifyToken reports the username a valid token belongs to. Tokens are
// compared by hash in constant time so a timing side-channel can't leak
// a partial match — the original compares plaintext tokens directly.
func (s *Store) VerifyToken(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	rows, err := s.pool.Query(ctx, "SELECT username, token_hash FROM tokens")
	if err != nil {
		return "", fmt.Errorf("userstore: query tokens: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var username, tokenHash string
		if err := rows.Scan(&username, &tokenHash); err != nil {
			return "", err
		}
		if subtle.ConstantTimeCompare([]byte(hash), []byte(tokenHash)) == 1 {
			return username, nil
		}
	}
	return "", ruleerr.UserErrorInvalidToken
}

type TokenInfo struct {
	Id         ids.TokenId
	Username   string
	CreatedAt  time.Time
	DeviceName string
}

func (s *Store) Tokens(ctx context.Context, username string) ([]TokenInfo, error) {
	key := strings.ToLower(username)
	rows, err := s.pool.Query(ctx, "SELECT token_id, created_at, device_name FROM tokens WHERE username=$1", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TokenInfo
	for rows.Next() {
		var idStr, deviceName string
		var createdAt time.Time
		if err := rows.Scan(&idStr, &createdAt, &deviceName); err != nil {
			return nil, err
		}
		tid, err := ids.ParseTokenId(idStr)
		if err != nil {
			continue
		}
		out = append(out, TokenInfo{Id: tid, Username: key, CreatedAt: createdAt, DeviceName: deviceName})
	}
	return out, rows.Err()
}

func (s *Store) RemoveToken(ctx context.Context, id ids.TokenId) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM tokens WHERE token_id=$1", id.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ruleerr.UserErrorTokenNotFound
	}
	return nil
}
