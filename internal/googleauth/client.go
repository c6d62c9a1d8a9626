// Package googleauth builds OAuth2 HTTP clients for Google APIs from an
// installed-app credentials file and a cached token file.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned when the token file has not been created yet.
var ErrNoToken = errors.New("no cached oauth token; run the google-auth command first")

// LoadConfig reads the OAuth client credentials for the given scopes.
func LoadConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return config, nil
}

// NewClient returns an HTTP client authorized with the cached token. It
// never prompts; a missing token yields ErrNoToken.
func NewClient(ctx context.Context, credentialsFile, tokenFile string, scopes ...string) (*http.Client, error) {
	config, err := LoadConfig(credentialsFile, scopes...)
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}
	return config.Client(ctx, tok), nil
}

// AuthCodeURL returns the consent URL for an offline token.
func AuthCodeURL(config *oauth2.Config) string {
	return config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// ExchangeAndSave trades an authorization code for a token and caches it.
func ExchangeAndSave(ctx context.Context, config *oauth2.Config, code, tokenFile string) error {
	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return saveToken(tokenFile, tok)
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
