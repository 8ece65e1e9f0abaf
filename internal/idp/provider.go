// Package idp integrates the external identity provider. The rest of the
// service treats identity as a black box: the provider authenticates
// credentials and issues tokens; the API only ever sees a verified subject.
package idp

import (
	"context"
	"errors"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Provider exchanges credentials for the provider's token payload. The
// payload is opaque to this service and returned to the client as-is.
type Provider interface {
	Login(ctx context.Context, username, password string) (map[string]any, error)
}
