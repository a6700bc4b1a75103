package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const secretsFile = "secrets.json"

type secrets struct {
	APIToken string `json:"api_token"`
}

func secretsFilePath(dataDir string) string {
	return filepath.Join(dataDir, secretsFile)
}

// APIToken returns the bearer token for the HTTP API, generating and storing
// one in dataDir on first use. PURGEKIT_API_TOKEN takes precedence.
func APIToken(dataDir string) (string, error) {
	if tok := os.Getenv("PURGEKIT_API_TOKEN"); tok != "" {
		return tok, nil
	}

	p := secretsFilePath(dataDir)
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		var s secrets
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("parsing secrets file: %w", err)
		}
		if s.APIToken != "" {
			return s.APIToken, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("reading secrets file: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets{APIToken: tok}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, out, 0o600); err != nil {
		return "", fmt.Errorf("writing secrets file: %w", err)
	}
	return tok, nil
}
