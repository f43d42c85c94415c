package cmd

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pilab-dev/shadow-oauth/domain"
)

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

type clientView struct {
	ID            string     `yaml:"id"`
	Secret        string     `yaml:"secret,omitempty"`
	DisplayName   string     `yaml:"display_name"`
	Link          string     `yaml:"link,omitempty"`
	ImageURL      string     `yaml:"image_url,omitempty"`
	RedirectURI   string     `yaml:"redirect_uri,omitempty"`
	Scope         []string   `yaml:"scope,flow"`
	Notes         string     `yaml:"notes,omitempty"`
	CreatedAt     time.Time  `yaml:"created_at"`
	RevokedAt     *time.Time `yaml:"revoked_at,omitempty"`
	TokensGranted int64      `yaml:"tokens_granted"`
	TokensRevoked int64      `yaml:"tokens_revoked"`
}

func newClientView(c *domain.Client, withSecret bool) clientView {
	v := clientView{
		ID:            c.ID,
		DisplayName:   c.DisplayName,
		Link:          c.Link,
		ImageURL:      c.ImageURL,
		RedirectURI:   c.RedirectURI,
		Scope:         c.Scope.Slice(),
		Notes:         c.Notes,
		CreatedAt:     c.CreatedAt,
		RevokedAt:     c.RevokedAt,
		TokensGranted: c.TokensGranted,
		TokensRevoked: c.TokensRevoked,
	}
	if withSecret {
		v.Secret = c.Secret
	}
	return v
}

type tokenView struct {
	Token      string     `yaml:"token"`
	Identity   string     `yaml:"identity,omitempty"`
	ClientID   string     `yaml:"client_id"`
	Scope      []string   `yaml:"scope,flow"`
	Active     bool       `yaml:"active"`
	CreatedAt  time.Time  `yaml:"created_at"`
	ExpiresAt  *time.Time `yaml:"expires_at,omitempty"`
	RevokedAt  *time.Time `yaml:"revoked_at,omitempty"`
	LastAccess *time.Time `yaml:"last_access,omitempty"`
}

func newTokenView(t *domain.AccessToken, now time.Time) tokenView {
	return tokenView{
		Token:      t.Token,
		Identity:   t.Identity,
		ClientID:   t.ClientID,
		Scope:      t.Scope.Slice(),
		Active:     t.IsActive(now),
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
		RevokedAt:  t.RevokedAt,
		LastAccess: t.LastAccess,
	}
}

type issuerView struct {
	Identifier    string    `yaml:"identifier"`
	HasHMACSecret bool      `yaml:"has_hmac_secret"`
	PublicKey     string    `yaml:"public_key,omitempty"`
	Notes         string    `yaml:"notes,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
	UpdatedAt     time.Time `yaml:"updated_at"`
}

func newIssuerView(i *domain.Issuer) issuerView {
	return issuerView{
		Identifier:    i.Identifier,
		HasHMACSecret: i.HMACSecret != "",
		PublicKey:     i.PublicKey,
		Notes:         i.Notes,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}
