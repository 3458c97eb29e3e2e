package session

import (
	"context"
	"fmt"
	"sync"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Spotify obtains application access tokens for the Spotify Web API via the
// client credentials flow. Tokens are cached and refreshed transparently;
// Logout drops the cached source so the next search fetches a fresh one.
type Spotify struct {
	mu     sync.Mutex
	conf   *clientcredentials.Config
	source oauth2.TokenSource
	logger *zap.Logger
}

// NewSpotify creates a Spotify session handle from application credentials.
func NewSpotify(clientID, clientSecret string, logger *zap.Logger) *Spotify {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spotify{
		conf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyauth.TokenURL,
		},
		logger: logger,
	}
}

// Authenticated reports whether application credentials are configured.
// The token itself is fetched lazily on first use.
func (s *Spotify) Authenticated() bool {
	return s.conf.ClientID != "" && s.conf.ClientSecret != ""
}

// AccessToken returns a valid access token, fetching or refreshing one when
// needed.
func (s *Spotify) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.source == nil {
		// The source outlives any single request, so it is not bound to
		// the caller's context.
		s.source = s.conf.TokenSource(context.Background())
	}
	source := s.source
	s.mu.Unlock()

	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("fetching client credentials token: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Logout drops the cached token source. It is invoked by providers when
// Spotify answers 401; the next search obtains a fresh token.
func (s *Spotify) Logout() {
	s.mu.Lock()
	s.source = nil
	s.mu.Unlock()

	s.logger.Info("Spotify token cache cleared")
}
