package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AuthFirebase = "firebase"
	AuthMemory   = "memory"

	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"
)

// FirebaseWebConfig is the static web config the Firebase console hands out.
type FirebaseWebConfig struct {
	APIKey            string `yaml:"apiKey"`
	AuthDomain        string `yaml:"authDomain"`
	ProjectID         string `yaml:"projectId"`
	StorageBucket     string `yaml:"storageBucket"`
	MessagingSenderID string `yaml:"messagingSenderId"`
	AppID             string `yaml:"appId"`
}

// Config is read once at start and never changed afterwards.
type Config struct {
	Env         string
	Port        int
	MetricsPort int

	AuthBackend  string
	StoreBackend string

	Firebase           FirebaseWebConfig
	CredentialsJSON    string
	IdentityToolkitURL string
	SecureTokenURL     string

	DatabaseURL      string
	DatabaseMaxConns int

	SessionCheckInterval time.Duration
	SessionIdleTimeout   time.Duration
	CookieSecure         bool
	LoginRatePerMinute   int
}

// Load reads the configuration from the environment, on top of the optional
// YAML file named by FIREBASE_CONFIG_FILE. Every missing required key is
// reported in one error.
func Load() (*Config, error) {
	cfg := &Config{
		Env:                  getEnvString("ENV", "development"),
		Port:                 getEnvInt("PORT", 9090),
		MetricsPort:          getEnvInt("METRICS_PORT", 9091),
		AuthBackend:          getEnvString("AUTH_BACKEND", AuthFirebase),
		StoreBackend:         getEnvString("STORE_BACKEND", StoreFirestore),
		CredentialsJSON:      os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_CONTENT"),
		IdentityToolkitURL:   os.Getenv("IDENTITY_TOOLKIT_URL"),
		SecureTokenURL:       os.Getenv("SECURE_TOKEN_URL"),
		DatabaseURL:          os.Getenv("DATABASE_CONNECTION_POOL_URL"),
		DatabaseMaxConns:     getEnvInt("DATABASE_MAX_CONNS", 16),
		SessionCheckInterval: getEnvDuration("SESSION_CHECK_INTERVAL", time.Minute),
		SessionIdleTimeout:   getEnvDuration("SESSION_IDLE_TIMEOUT", 24*time.Hour),
		CookieSecure:         getEnvBool("COOKIE_SECURE", false),
		LoginRatePerMinute:   getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
	}

	if path := os.Getenv("FIREBASE_CONFIG_FILE"); path != "" {
		web, err := LoadFirebaseWebConfig(path)
		if err != nil {
			return nil, err
		}
		cfg.Firebase = web
	}
	cfg.Firebase.APIKey = getEnvString("FIREBASE_WEB_API_KEY", cfg.Firebase.APIKey)
	cfg.Firebase.ProjectID = getEnvString("FIREBASE_PROJECT_ID", cfg.Firebase.ProjectID)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !slices.Contains([]string{AuthFirebase, AuthMemory}, c.AuthBackend) {
		return fmt.Errorf("unknown AUTH_BACKEND %q", c.AuthBackend)
	}
	if !slices.Contains([]string{StoreFirestore, StorePostgres, StoreMemory}, c.StoreBackend) {
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	var missing []string
	require := func(key string, value string) {
		if value == "" && !slices.Contains(missing, key) {
			missing = append(missing, key)
		}
	}
	if c.AuthBackend == AuthFirebase {
		require("FIREBASE_WEB_API_KEY", c.Firebase.APIKey)
		require("FIREBASE_PROJECT_ID", c.Firebase.ProjectID)
		require("GOOGLE_APPLICATION_CREDENTIALS_CONTENT", c.CredentialsJSON)
	}
	switch c.StoreBackend {
	case StoreFirestore:
		require("FIREBASE_PROJECT_ID", c.Firebase.ProjectID)
		require("GOOGLE_APPLICATION_CREDENTIALS_CONTENT", c.CredentialsJSON)
	case StorePostgres:
		require("DATABASE_CONNECTION_POOL_URL", c.DatabaseURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// NeedsFirebaseApp reports whether an Admin SDK app has to be created.
func (c *Config) NeedsFirebaseApp() bool {
	return c.AuthBackend == AuthFirebase || c.StoreBackend == StoreFirestore
}

// LoadFirebaseWebConfig reads a YAML file holding the Firebase web config.
func LoadFirebaseWebConfig(path string) (FirebaseWebConfig, error) {
	var web FirebaseWebConfig
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return web, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &web); err != nil {
		return web, fmt.Errorf("failed to parse config file: %w", err)
	}
	return web, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
