package idp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Cognito proxies USER_PASSWORD_AUTH to an AWS Cognito user pool endpoint.
type Cognito struct {
	url          string
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewCognito(url, clientID, clientSecret string) *Cognito {
	return &Cognito{
		url:          url,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Cognito) Login(ctx context.Context, username, password string) (map[string]any, error) {
	body := map[string]any{
		"AuthFlow": "USER_PASSWORD_AUTH",
		"ClientId": c.clientID,
		"AuthParameters": map[string]string{
			"USERNAME":    username,
			"PASSWORD":    password,
			"SECRET_HASH": SecretHash(username, c.clientID, c.clientSecret),
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", "AWSCognitoIdentityProviderService.InitiateAuth")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initiate auth: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ErrInvalidCredentials
	}

	var result map[string]any
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	return result, nil
}

// SecretHash computes the Cognito SECRET_HASH parameter:
// base64(HMAC-SHA256(username + clientID, clientSecret)).
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	_, _ = mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
