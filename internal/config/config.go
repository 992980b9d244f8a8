package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Postgres PostgresConfig
}

type ServerConfig struct {
	Addr           string
	LogLevel       string
	AllowedOrigins []string
}

// AuthConfig keeps raw values; the services that consume them parse and
// validate on construction.
type AuthConfig struct {
	JWTSecret           string
	JWTAlgorithm        string
	JWTAccessTTL        string
	JWTRefreshTTL       string
	RotateRefreshTokens string
	PasswordSchemes     []string
	UsernameField       string
	PasswordField       string
	AdminUsername       string
	AdminPassword       string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

// Enabled reports whether enough connection settings are present to use
// Postgres instead of the in-memory store.
func (c PostgresConfig) Enabled() bool {
	return c.DatabaseURL != "" || (c.User != "" && c.Database != "")
}

// Load reads an optional .env file from the working directory and then the
// process environment. Variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Server: ServerConfig{
			Addr:           getenv("HTTP_ADDR", ":8080"),
			LogLevel:       getenv("LOG_LEVEL", "info"),
			AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Auth: AuthConfig{
			JWTSecret:           os.Getenv("JWT_SECRET"),
			JWTAlgorithm:        getenv("JWT_ALGORITHM", "HS256"),
			JWTAccessTTL:        getenv("JWT_ACCESS_TTL", "15m"),
			JWTRefreshTTL:       getenv("JWT_REFRESH_TTL", "720h"),
			RotateRefreshTokens: getenv("ROTATE_REFRESH_TOKENS", "true"),
			PasswordSchemes:     splitList(getenv("PASSWORD_SCHEMES", "bcrypt,argon2id")),
			UsernameField:       getenv("AUTH_USERNAME_FIELD", "login_id"),
			PasswordField:       getenv("AUTH_PASSWORD_FIELD", "password_hash"),
			AdminUsername:       os.Getenv("ADMIN_USERNAME"),
			AdminPassword:       os.Getenv("ADMIN_PASSWORD"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
