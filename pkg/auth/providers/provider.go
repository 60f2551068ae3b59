package providers

import "context"

// AuthProvider verifies session tokens. Credential storage and
// verification live behind this boundary; the core only learns the
// authenticated user ID.
type AuthProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error)
}

type TokenClaims struct {
	UID string `json:"uid"`
}
