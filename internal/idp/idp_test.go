package idp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mindgraph/api/internal/auth"
)

func TestSecretHashIsDeterministic(t *testing.T) {
	first := SecretHash("alice@example.com", "client-id", "client-secret")
	second := SecretHash("alice@example.com", "client-id", "client-secret")
	if first == "" || first != second {
		t.Fatalf("expected stable non-empty hash, got %q and %q", first, second)
	}
	if other := SecretHash("bob@example.com", "client-id", "client-secret"); other == first {
		t.Fatal("expected different usernames to produce different hashes")
	}
}

func TestCognitoLoginForwardsAuthParameters(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Amz-Target"); got != "AWSCognitoIdentityProviderService.InitiateAuth" {
			t.Errorf("unexpected X-Amz-Target %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-amz-json-1.1" {
			t.Errorf("unexpected Content-Type %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"AuthenticationResult": map[string]any{"AccessToken": "provider-token"},
		})
	}))
	defer server.Close()

	provider := NewCognito(server.URL, "client-id", "client-secret")
	payload, err := provider.Login(context.Background(), "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	params, _ := captured["AuthParameters"].(map[string]any)
	if params["USERNAME"] != "alice@example.com" {
		t.Fatalf("expected USERNAME to be forwarded, got %v", params["USERNAME"])
	}
	if params["SECRET_HASH"] != SecretHash("alice@example.com", "client-id", "client-secret") {
		t.Fatal("expected SECRET_HASH to match the computed value")
	}
	result, _ := payload["AuthenticationResult"].(map[string]any)
	if result["AccessToken"] != "provider-token" {
		t.Fatalf("expected opaque provider payload, got %v", payload)
	}
}

func TestCognitoLoginMapsRejectionToInvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"__type": "NotAuthorizedException"})
	}))
	defer server.Close()

	provider := NewCognito(server.URL, "client-id", "client-secret")
	_, err := provider.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLocalLoginIssuesParsableToken(t *testing.T) {
	provider, err := NewLocal("test-secret", time.Hour, "alice@example.com:hunter22")
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	payload, err := provider.Login(context.Background(), "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	result, _ := payload["AuthenticationResult"].(map[string]any)
	token, _ := result["AccessToken"].(string)
	if token == "" {
		t.Fatal("expected an access token")
	}

	claims, err := auth.ParseToken([]byte("test-secret"), token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject() != "alice@example.com" {
		t.Fatalf("expected subject alice@example.com, got %q", claims.Subject())
	}
}

func TestLocalLoginRejectsBadCredentials(t *testing.T) {
	provider, err := NewLocal("test-secret", time.Hour, "alice@example.com:hunter22")
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	if _, err := provider.Login(context.Background(), "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := provider.Login(context.Background(), "bob@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestNewLocalRejectsMalformedSeed(t *testing.T) {
	if _, err := NewLocal("s", time.Hour, "not-a-pair"); err == nil {
		t.Fatal("expected error for malformed dev user entry")
	}
}
