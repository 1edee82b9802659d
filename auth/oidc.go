package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/globals"
)

// Authenticator resolves a bearer credential to a user id. Implementations
// return an empty user id (and no error) when the credential is absent or
// no matching provider is configured, which leaves the connection
// anonymous.
type Authenticator interface {
	Authenticate(ctx context.Context, token, provider string) (string, error)
}

// OIDCAuthenticator verifies ID tokens against the configured OpenID
// Connect providers.
type OIDCAuthenticator struct {
	cfg *config.Config
}

func NewOIDCAuthenticator(cfg *config.Config) *OIDCAuthenticator {
	return &OIDCAuthenticator{cfg: cfg}
}

// Authenticate verifies a given OIDC ID-Token using the configured OIDC
// provider. It returns the user's id if verification was successful (or an
// empty string if no provider was configured).
// TODO: Currently, the userId is set to the "email" property of the claim, this could be made configurable. But: ensure that this is unique across the user base!
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, idToken, oidcProvider string) (string, error) {
	if idToken == "" || len(a.cfg.OIDCConfigs) == 0 {
		return "", nil
	}
	var oidcConf *config.OIDCConfig
	for i := range a.cfg.OIDCConfigs {
		if a.cfg.OIDCConfigs[i].Name == oidcProvider {
			oidcConf = &a.cfg.OIDCConfigs[i]
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", oidcProvider)
		return "", nil
	}
	provider, err := oidc.NewProvider(ctx, oidcConf.ProviderUrl)
	if err != nil {
		return "", err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(ctx, idToken)
	if err != nil {
		globals.AppLogger.Error("could not verify token", "error", err)
		return "", err
	}
	claims := struct {
		Email string `json:"email"`
	}{}
	if err := verifiedIdToken.Claims(&claims); err != nil {
		return "", err
	}
	return claims.Email, nil
}
