package idp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mindgraph/api/internal/auth"
)

// Local is a development stand-in for the external provider. It checks
// credentials against bcrypt hashes seeded at startup and issues tokens
// signed with the service secret, shaped like the provider's payload.
type Local struct {
	secret    []byte
	accessTTL time.Duration
	users     map[string]string
}

// NewLocal seeds the provider from "email:password" pairs, comma separated.
func NewLocal(secret string, accessTTL time.Duration, devUsers string) (*Local, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(devUsers, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, password, ok := strings.Cut(pair, ":")
		if !ok || email == "" {
			return nil, fmt.Errorf("malformed dev user entry %q", pair)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash dev password: %w", err)
		}
		users[email] = string(hash)
	}
	return &Local{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		users:     users,
	}, nil
}

func (l *Local) Login(ctx context.Context, username, password string) (map[string]any, error) {
	hash, ok := l.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(l.accessTTL)
	token, err := auth.IssueToken(l.secret, auth.Claims{
		Sub: username,
		JTI: auth.NewJTI(),
		Exp: expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	// Mirrors the shape of the provider's AuthenticationResult payload
	return map[string]any{
		"AuthenticationResult": map[string]any{
			"AccessToken": token,
			"IdToken":     token,
			"ExpiresIn":   int64(l.accessTTL.Seconds()),
			"TokenType":   "Bearer",
		},
	}, nil
}
