package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCLogin drives the authorization-code flow against the configured
// issuer for browsers that sign in through the external provider.
type OIDCLogin struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewOIDCLogin prepares the authorization-code flow.
func NewOIDCLogin(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) (*OIDCLogin, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("identity: discover oidc issuer: %w", err)
	}
	return &OIDCLogin{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthCodeURL returns the issuer URL to redirect the browser to.
func (l *OIDCLogin) AuthCodeURL(state string) string {
	return l.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a verified identity.
func (l *OIDCLogin) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := l.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("identity: exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("identity: missing id_token in token response")
	}
	idToken, err := l.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("identity: verify id token: %w", err)
	}
	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("identity: parse claims: %w", err)
	}
	return &Identity{ID: subjectID(claims.Subject), Email: claims.Email, EmailConfirmed: claims.EmailVerified}, nil
}
