package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreMemory    = "memory"

	AuthFirebase = "firebase"
	AuthClerk    = "clerk"
	AuthLocal    = "local"
)

type Config struct {
	Port         string
	Env          string
	HabitStore   string
	AuthProvider string
	LandingPath  string

	DatabaseURL string

	FirebaseCredentialsJSON string
	FirebaseCredentialsFile string
	FirebaseProjectID       string

	ClerkSecretKey  string
	LocalAuthSecret string

	MetricsUser string
	MetricsPass string

	// AllowedOrigins may open the tracker socket besides the server's own host.
	AllowedOrigins []string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, the environment may be set by the platform
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "3333"),
		Env:          getEnv("APP_ENV", "production"),
		HabitStore:   strings.ToLower(getEnv("HABIT_STORE", StoreFirestore)),
		AuthProvider: strings.ToLower(getEnv("AUTH_PROVIDER", AuthFirebase)),
		LandingPath:  getEnv("LANDING_PATH", "/landingpage"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		FirebaseCredentialsJSON: os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),

		ClerkSecretKey:  os.Getenv("CLERK_SECRET_KEY"),
		LocalAuthSecret: os.Getenv("LOCAL_AUTH_SECRET"),

		MetricsUser: os.Getenv("METRICS_USER"),
		MetricsPass: os.Getenv("METRICS_PASS"),

		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.HabitStore {
	case StoreFirestore, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	default:
		return fmt.Errorf("unknown HABIT_STORE %q", c.HabitStore)
	}

	switch c.AuthProvider {
	case AuthFirebase:
	case AuthClerk:
		if c.ClerkSecretKey == "" {
			return fmt.Errorf("CLERK_SECRET_KEY environment variable is not set")
		}
	case AuthLocal:
		if len(c.LocalAuthSecret) < 16 {
			return fmt.Errorf("LOCAL_AUTH_SECRET must be at least 16 characters")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}

	return nil
}

// NeedsFirebase reports whether any configured component talks to Firebase.
func (c *Config) NeedsFirebase() bool {
	return c.HabitStore == StoreFirestore || c.AuthProvider == AuthFirebase
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "local"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
