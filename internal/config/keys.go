package config

import (
	"net/url"
	"os"
)

// SecretSource represents where a secret comes from.
type SecretSource string

const (
	SourceEnv    SecretSource = "env"
	SourceConfig SecretSource = "config"
	SourceNone   SecretSource = "none"
)

// SecretStatus represents the status of a credential.
type SecretStatus struct {
	Name   string       `json:"name"`
	Source SecretSource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "sec...ret"
}

// CheckSecrets returns the status of all credentials the service may use.
func CheckSecrets(cfg *Config) []SecretStatus {
	dsn := checkSecret("Store DSN", cfg.Store.DSN, "MOEXIDX_STORE_DSN")
	if dsn.IsSet {
		dsn.Masked = RedactDSN(cfg.Store.DSN)
	}
	return []SecretStatus{
		dsn,
		checkSecret("MOEX Passport User", cfg.MOEX.Username, "MOEXIDX_MOEX_USERNAME"),
		checkSecret("MOEX Passport Password", cfg.MOEX.Password, "MOEXIDX_MOEX_PASSWORD"),
	}
}

// checkSecret checks if a value is set and where it came from.
func checkSecret(name, value, envVar string) SecretStatus {
	status := SecretStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		if os.Getenv(envVar) != "" {
			status.Source = SourceEnv
		} else {
			status.Source = SourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = SourceNone
	}

	return status
}

// RedactDSN hides the password of a URL-style DSN. Plain file paths are
// returned unchanged.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// maskKey masks a secret for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}

// Redacted returns a copy of cfg safe to display: the DSN password is
// hidden and the passport password masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Store.DSN = RedactDSN(c.Store.DSN)
	if c.MOEX.Password != "" {
		out.MOEX.Password = "***"
	}
	out.API.CORSOrigins = append([]string(nil), c.API.CORSOrigins...)
	return out
}
