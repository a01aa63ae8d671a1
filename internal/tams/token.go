package tams

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// expirySkew is subtracted from the token lifetime so a token is refreshed
// slightly before the issuer considers it expired.
const expirySkew = 30 * time.Second

// TokenSource supplies a bearer token for upstream store requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a pre-issued, long-lived token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// ClientCredentials acquires tokens via the OAuth2 client-credentials grant
// and caches them until shortly before expiry. Concurrent callers needing a
// refresh share a single in-flight token request.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client

	mu         sync.RWMutex
	token      string
	validUntil time.Time
	group      singleflight.Group
}

// Token returns the cached token, refreshing it first when it is missing or
// within the expiry skew.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, validUntil := c.token, c.validUntil
	c.mu.RUnlock()

	if token != "" && time.Now().Before(validUntil) {
		return token, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *ClientCredentials) refresh(ctx context.Context) (string, error) {
	// Another caller may have refreshed while this one waited on the group.
	c.mu.RLock()
	if c.token != "" && time.Now().Before(c.validUntil) {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	form := url.Values{
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {strings.Join(c.Scopes, " ")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token response: no access_token")
	}

	c.mu.Lock()
	c.token = body.AccessToken
	c.validUntil = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - expirySkew)
	c.mu.Unlock()

	return body.AccessToken, nil
}
