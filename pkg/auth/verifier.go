package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/oncoregistry/ingest/pkg/config"
	"github.com/oncoregistry/ingest/pkg/model"
	"github.com/oncoregistry/ingest/pkg/observability"
)

// TokenVerifier resolves a bearer token into an authenticated principal.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*model.Principal, error)
}

// OIDCVerifier validates tokens against the configured authority. Two
// audiences are trusted: the service audience for machine-to-machine tokens
// and the portal audience for interactive users. The underlying provider
// fetches and caches the authority's JWKS.
type OIDCVerifier struct {
	provider        *oidc.Provider
	serviceVerifier *oidc.IDTokenVerifier
	portalVerifier  *oidc.IDTokenVerifier
	portalAudience  string
	accounts        *AccountStore
	metrics         *observability.Metrics
	log             logrus.FieldLogger
}

// NewOIDCVerifier discovers the authority and builds verifiers for both
// audiences. The portal verifier is only created when a portal audience is
// configured.
func NewOIDCVerifier(ctx context.Context, cfg config.AuthConfig, accounts *AccountStore, metrics *observability.Metrics, log logrus.FieldLogger) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer())
	if err != nil {
		return nil, fmt.Errorf("discover identity provider: %w", err)
	}

	v := &OIDCVerifier{
		provider:        provider,
		serviceVerifier: provider.Verifier(&oidc.Config{ClientID: cfg.Audience}),
		portalAudience:  cfg.PortalAudience,
		accounts:        accounts,
		metrics:         metrics,
		log:             log,
	}
	if cfg.PortalAudience != "" {
		v.portalVerifier = provider.Verifier(&oidc.Config{ClientID: cfg.PortalAudience})
	}
	return v, nil
}

type tokenClaims struct {
	Email     string `json:"email"`
	GrantType string `json:"gty"`
}

// Verify validates the token's signature, issuer, expiry and audience, then
// resolves it to a principal. Portal tokens lazily create a pending account
// for first-time users. Service tokens carrying a gty claim resolve to the
// fixed system identity; service tokens without one (interactive tokens
// minted against the service audience) fall back to the authority's
// userinfo endpoint for an email.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*model.Principal, error) {
	principal, err := v.verify(ctx, rawToken)
	v.countOutcome(err)
	return principal, err
}

func (v *OIDCVerifier) verify(ctx context.Context, rawToken string) (*model.Principal, error) {
	authLog := observability.WithCategory(v.log, observability.CategoryAuth)

	if rawToken == "" {
		return nil, authError(CodeInvalidHeader, "no token supplied")
	}
	if strings.Count(rawToken, ".") != 2 {
		return nil, authError(CodeInvalidHeader, "unable to parse authentication token")
	}

	fromPortal := v.portalVerifier != nil && audienceMatches(rawToken, v.portalAudience)
	verifier := v.serviceVerifier
	if fromPortal {
		verifier = v.portalVerifier
	}

	idToken, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			authLog.Info("rejected expired token")
			return nil, authError(CodeTokenExpired, "token is expired")
		}
		authLog.WithError(err).Info("rejected token")
		return nil, authError(CodeInvalidClaims, "incorrect claims, please check the audience and issuer")
	}

	var claims tokenClaims
	rawClaims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, authError(CodeInvalidClaims, "unable to decode token claims")
	}
	_ = idToken.Claims(&rawClaims)

	if fromPortal {
		if claims.Email == "" {
			return nil, authError(CodeInvalidClaims, "portal token is missing an email claim")
		}
		if err := v.accounts.EnsureExists(ctx, claims.Email); err != nil {
			return nil, fmt.Errorf("ensure account for %q: %w", claims.Email, err)
		}
		authLog.WithField("email", claims.Email).Info("authenticated portal user")
		return &model.Principal{Email: claims.Email, Claims: rawClaims}, nil
	}

	if claims.GrantType != "" {
		return &model.Principal{Email: model.SystemIdentity, Service: true, Claims: rawClaims}, nil
	}

	// Service-audience token from an interactive flow: the email lives at
	// the userinfo endpoint, not in the token.
	email, err := v.lookupEmail(ctx, rawToken)
	if err != nil {
		authLog.WithError(err).Error("userinfo lookup failed")
		return nil, authError(CodeNoInfo, "no userinfo found at endpoint")
	}
	authLog.WithField("email", email).Info("authenticated user via userinfo")
	return &model.Principal{Email: email, Claims: rawClaims}, nil
}

func (v *OIDCVerifier) lookupEmail(ctx context.Context, rawToken string) (string, error) {
	info, err := v.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: rawToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return "", fmt.Errorf("fetch userinfo: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo response carries no email")
	}
	return info.Email, nil
}

func (v *OIDCVerifier) countOutcome(err error) {
	if v.metrics == nil {
		return
	}
	code := "ok"
	var ae *AuthError
	if errors.As(err, &ae) {
		code = ae.Code
	} else if err != nil {
		code = "internal"
	}
	v.metrics.AuthOutcomes.WithLabelValues(code).Inc()
}

// audienceMatches peeks at the token's unverified audience claim to route it
// to the right verifier. Signature validation happens afterwards; a forged
// audience only selects which audience check the token must then survive.
func audienceMatches(rawToken, audience string) bool {
	for _, aud := range unverifiedAudiences(rawToken) {
		if aud == audience {
			return true
		}
	}
	return false
}

func unverifiedAudiences(rawToken string) []string {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil
	}
	var body struct {
		Audience interface{} `json:"aud"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil
	}
	switch aud := body.Audience.(type) {
	case string:
		return []string{aud}
	case []interface{}:
		out := make([]string, 0, len(aud))
		for _, a := range aud {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
