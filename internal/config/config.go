package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		// DerivationSuffix is the fixed 2-digit year appended to the first
		// characters of the id-number to form the Phase-1 password.
		DerivationSuffix string `yaml:"derivation_suffix"`
		LockoutThreshold int    `yaml:"lockout_threshold"`
		LockoutDuration  string `yaml:"lockout_duration"`
		SessionTTL       string `yaml:"session_ttl"`
		JWTSecret        string `yaml:"jwt_secret"`
		// AllowLegacyPlaintext enables the plaintext-equality fallback for
		// pre-seeded coordinator accounts. Off unless explicitly configured.
		AllowLegacyPlaintext bool `yaml:"allow_legacy_plaintext"`
		PasswordHistory      int  `yaml:"password_history"`
	} `yaml:"auth"`
	Timer struct {
		SigningKey string `yaml:"signing_key"`
		Grace      string `yaml:"grace"`
	} `yaml:"timer"`
	Exam struct {
		SessionTTL string `yaml:"session_ttl"`
		ContentTTL string `yaml:"content_ttl"`
	} `yaml:"exam"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty
// or malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns v unless it is zero, in which case fallback.
func IntOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// StringOr returns v unless it is empty, in which case fallback.
func StringOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
