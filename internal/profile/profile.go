// Package profile carries the runtime configuration of the parley CLI:
// which server to talk to, who to act as, and where local state lives.
package profile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the resolved configuration CLI commands run with. Flags and
// environment are merged into it before Validate fills the defaults.
type Profile struct {
	// Mode is "dev" or "prod". Dev mode turns on debug logging and the
	// human-readable log handler.
	Mode string
	// Endpoint is the server base URL, e.g. http://localhost:8780.
	Endpoint string
	// UserID is the account commands act as.
	UserID string
	// Password signs in when no saved credential is usable. Environment
	// only, never a flag.
	Password string
	// Token is a ready session token, skipping the password login.
	// Environment only.
	Token string
	// Secret signs the mock server's session tokens. Empty picks a random
	// one per run.
	Secret string
	// Data is the directory holding the local store and downloads.
	Data string
	// DBName names the database file inside Data.
	DBName string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv fills the credential fields that never travel as flags.
func (p *Profile) FromEnv() {
	p.Password = getEnvOrDefault("PARLEY_PASSWORD", p.Password)
	p.Token = getEnvOrDefault("PARLEY_TOKEN", p.Token)
	p.Secret = getEnvOrDefault("PARLEY_SECRET", p.Secret)
}

// checkDataDir normalizes dataDir to an absolute path and creates it when
// missing.
func checkDataDir(dataDir string) (string, error) {
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "unable to create data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate fills defaults and makes sure the data directory is usable.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.DBName == "" {
		p.DBName = "parley"
	}
	p.Endpoint = strings.TrimRight(p.Endpoint, "/")

	if p.Data == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		p.Data = filepath.Join(base, "parley")
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir
	return nil
}
