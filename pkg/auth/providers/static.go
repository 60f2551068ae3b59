package providers

import (
	"context"
	"fmt"
)

var _ AuthProvider = &StaticAuthProvider{}

// StaticAuthProvider treats the bearer token itself as the user ID.
// Local development only; it performs no verification.
type StaticAuthProvider struct {
}

func NewStaticAuthProvider() *StaticAuthProvider {
	return &StaticAuthProvider{}
}

func (p *StaticAuthProvider) VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error) {
	if idToken == "" {
		return nil, fmt.Errorf("empty token")
	}
	return &TokenClaims{
		UID: idToken,
	}, nil
}
