package googleauth

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenUpdateFunc persists a refreshed token for the owning account.
type TokenUpdateFunc func(token *oauth2.Token) error

// Credentials are the OAuth tokens of one account.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	OnRefresh    TokenUpdateFunc
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[OAuth] failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// Client builds Google OAuth configs for the configured app.
type Client struct {
	clientID     string
	clientSecret string
	scopes       []string
}

func NewClient(clientID, clientSecret string, scopes ...string) *Client {
	return &Client{clientID: clientID, clientSecret: clientSecret, scopes: scopes}
}

// HTTPClient returns an authorized client that refreshes the access token
// when needed and reports refreshes through creds.OnRefresh.
func (c *Client) HTTPClient(ctx context.Context, creds Credentials) *http.Client {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	// Force a refresh on first use when we can
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	cfg := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       c.scopes,
	}

	return oauth2.NewClient(ctx, &notifyTokenSource{
		src:      cfg.TokenSource(ctx, token),
		current:  token,
		callback: creds.OnRefresh,
	})
}
