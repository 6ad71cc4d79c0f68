package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
)

type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type TokenExchange struct {
	AccessToken string  `json:"accessToken"`
	Profile     Profile `json:"profile"`
}

// OAuthClient меняет authorization code на access token у провайдера и
// подтягивает профиль. Секрет живёт только в конфиге процесса.
type OAuthClient struct {
	tokenURL     string
	profileURL   string
	clientID     string
	clientSecret string
	redirectURI  string
	http         *http.Client
}

func NewOAuthClient(tokenURL, profileURL, clientID, clientSecret, redirectURI string) *OAuthClient {
	return &OAuthClient{
		tokenURL:     tokenURL,
		profileURL:   profileURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *OAuthClient) Exchange(ctx context.Context, code string) (*TokenExchange, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty oauth code", domain.ErrValidation)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {c.redirectURI},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: provider responded %d", domain.ErrUpstream, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: malformed token response", domain.ErrUpstream)
	}

	profile, err := c.fetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	return &TokenExchange{AccessToken: tok.AccessToken, Profile: *profile}, nil
}

func (c *OAuthClient) fetchProfile(ctx context.Context, token string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch profile: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: profile endpoint responded %d", domain.ErrUpstream, resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: malformed profile response", domain.ErrUpstream)
	}
	return &p, nil
}
