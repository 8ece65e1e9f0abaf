package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub: "sub-1",
		JTI: "jti-1",
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "sub-1" || claims.JTI != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub: "sub-1",
		JTI: "jti-1",
		Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, err = ParseToken(secret, issued)
	if err == nil {
		t.Fatal("expected ParseToken() to fail for expired token")
	}
}

func TestParseTokenRejectsBadSignature(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), Claims{
		Sub: "sub-1",
		JTI: "jti-1",
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("other-secret"), issued); err == nil {
		t.Fatal("expected ParseToken() to fail for wrong secret")
	}
}

func TestSubjectPrefersUsernameOverSub(t *testing.T) {
	cases := []struct {
		name   string
		claims Claims
		want   string
	}{
		{"username wins", Claims{Sub: "sub-1", Username: "google_abc"}, "google_abc"},
		{"blank username falls back", Claims{Sub: "sub-1", Username: "   "}, "sub-1"},
		{"sub only", Claims{Sub: "sub-1"}, "sub-1"},
		{"neither", Claims{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.claims.Subject(); got != tc.want {
				t.Fatalf("Subject() = %q, want %q", got, tc.want)
			}
		})
	}
}
