package providers

import (
	"context"
	"fmt"
)

var _ AuthProvider = &InsecureAuthProvider{}

// InsecureAuthProvider treats the bearer token as the uid itself.
// Local development only.
type InsecureAuthProvider struct{}

func NewInsecureAuthProvider() *InsecureAuthProvider {
	return &InsecureAuthProvider{}
}

func (p *InsecureAuthProvider) VerifyToken(_ context.Context, idToken string) (*TokenClaims, error) {
	if idToken == "" {
		return nil, fmt.Errorf("empty token")
	}
	return &TokenClaims{
		UID: idToken,
	}, nil
}
