// Package session holds the per-service authenticated session handles that
// cover providers read their credentials from on every request.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// tokenFileMode is the permission for persisted token files.
const tokenFileMode = 0600

// TidalTokenData is the on-disk shape of a persisted Tidal token.
type TidalTokenData struct {
	Token *oauth2.Token `json:"token"`
}

// Tidal holds the OAuth token and account-scoped search parameters for the
// Tidal Web API. Safe for concurrent use.
type Tidal struct {
	mu          sync.Mutex
	token       *oauth2.Token
	countryCode string
	searchLimit int
	tokenPath   string
	logger      *zap.Logger
}

// NewTidal creates a Tidal session handle. The token, if any, is loaded
// separately with LoadToken.
func NewTidal(tokenPath, countryCode string, searchLimit int, logger *zap.Logger) *Tidal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tidal{
		countryCode: countryCode,
		searchLimit: searchLimit,
		tokenPath:   tokenPath,
		logger:      logger,
	}
}

// LoadToken reads a previously saved token from disk.
func (s *Tidal) LoadToken() error {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return fmt.Errorf("reading token file: %w", err)
	}

	var saved TidalTokenData
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("parsing token file: %w", err)
	}
	if saved.Token == nil {
		return fmt.Errorf("token file %s carries no token", s.tokenPath)
	}

	s.mu.Lock()
	s.token = saved.Token
	s.mu.Unlock()

	s.logger.Info("Loaded Tidal token", zap.String("path", s.tokenPath))
	return nil
}

// SetToken installs a token and persists it.
func (s *Tidal) SetToken(token *oauth2.Token) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	data, err := json.Marshal(TidalTokenData{Token: token})
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.WriteFile(s.tokenPath, data, tokenFileMode); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// Authenticated reports whether the session holds a non-expired token.
func (s *Tidal) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.Valid()
}

// AccessToken returns the current bearer token, or "" when logged out.
func (s *Tidal) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

func (s *Tidal) CountryCode() string { return s.countryCode }

func (s *Tidal) SearchLimit() int { return s.searchLimit }

// Logout drops the token and best-effort removes the persisted copy. It is
// invoked by providers when Tidal reports the session is no longer valid.
func (s *Tidal) Logout() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()

	if err := os.Remove(s.tokenPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("Failed to remove token file", zap.String("path", s.tokenPath), zap.Error(err))
	}
	s.logger.Info("Tidal session cleared")
}
