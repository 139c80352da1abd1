package github

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/repopulse/internal/config"
)

// NewClient creates a GitHub API client from the configured auth mode:
// a GitHub App installation (via ghinstallation, with automatic JWT and
// installation token management) or a personal access token.
func NewClient(cfg config.GitHubConfig) (*gogithub.Client, error) {
	switch cfg.Auth {
	case "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("token auth configured but github.token is empty")
		}
		return gogithub.NewClient(nil).WithAuthToken(cfg.Token), nil
	case "", "app":
		appID, err := strconv.ParseInt(cfg.AppID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid app_id %q: %w", cfg.AppID, err)
		}
		installationID, err := strconv.ParseInt(cfg.InstallationID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid installation_id %q: %w", cfg.InstallationID, err)
		}
		return newAppClient(appID, installationID, []byte(cfg.PrivateKey), cfg.PrivateKeyPath)
	default:
		return nil, fmt.Errorf("unsupported github auth mode: %s", cfg.Auth)
	}
}

// newAppClient creates a client authenticated as a GitHub App installation.
//
// privateKey can be either:
//   - Raw PEM bytes (begins with "-----BEGIN")
//   - Base64-encoded PEM bytes
//
// If privateKey is nil or empty and privateKeyPath is provided, the key is
// read from that file path.
func newAppClient(appID, installationID int64, privateKey []byte, privateKeyPath string) (*gogithub.Client, error) {
	key, err := resolvePrivateKey(privateKey, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("resolving private key: %w", err)
	}

	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, key)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}

	return gogithub.NewClient(&http.Client{Transport: transport}), nil
}

// resolvePrivateKey returns PEM-encoded private key bytes from either the
// provided raw/base64-encoded key or by reading from a file path.
func resolvePrivateKey(key []byte, keyPath string) ([]byte, error) {
	if len(key) > 0 {
		s := strings.TrimSpace(string(key))
		if strings.HasPrefix(s, "-----BEGIN") {
			return []byte(s), nil
		}
		// Try base64 decode
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			// Try URL-safe base64
			decoded, err = base64.URLEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("private key is neither PEM nor valid base64: %w", err)
			}
		}
		return decoded, nil
	}

	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key file %s: %w", keyPath, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("no private key provided: set private_key or private_key_path")
}
