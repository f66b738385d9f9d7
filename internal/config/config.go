package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                    = "DIVIDIS"
	defaultHTTPAddress           = "0.0.0.0:8080"
	defaultDatabasePath          = "dividis.db"
	defaultLogLevel              = "info"
	defaultLogFormat             = "json"
	defaultRedisTTLSeconds       = 30
	defaultTokenIssuer           = "dividis-auth"
	defaultTokenAudience         = "dividis-api"
	defaultTokenTTLMinutes       = 60
	defaultCookieName            = "dividis_session"
	defaultFirebaseJWKSURL       = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	defaultExperiencePerSentence = 10
	defaultFeedPageSize          = 8
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress           string
	DatabasePath          string
	LogLevel              string
	LogFormat             string
	RedisURL              string
	RedisTTL              time.Duration
	SigningSecret         string
	TokenIssuer           string
	TokenAudience         string
	TokenTTL              time.Duration
	CookieName            string
	FirebaseProjectID     string
	FirebaseJWKSURL       string
	AllowedOrigins        []string
	ExperiencePerSentence int
	SeedDefaults          bool
	FeedPageSize          int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("redis.url", "")
	configViper.SetDefault("redis.ttl_seconds", defaultRedisTTLSeconds)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("firebase.jwks_url", defaultFirebaseJWKSURL)
	configViper.SetDefault("journey.experience_per_sentence", defaultExperiencePerSentence)
	configViper.SetDefault("journey.seed_defaults", true)
	configViper.SetDefault("feed.page_size", defaultFeedPageSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		DatabasePath:          configViper.GetString("database.path"),
		LogLevel:              configViper.GetString("log.level"),
		LogFormat:             configViper.GetString("log.format"),
		RedisURL:              strings.TrimSpace(configViper.GetString("redis.url")),
		RedisTTL:              time.Duration(configViper.GetInt("redis.ttl_seconds")) * time.Second,
		SigningSecret:         configViper.GetString("auth.signing_secret"),
		TokenIssuer:           configViper.GetString("auth.issuer"),
		TokenAudience:         configViper.GetString("auth.audience"),
		TokenTTL:              time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		CookieName:            configViper.GetString("auth.cookie_name"),
		FirebaseProjectID:     configViper.GetString("firebase.project_id"),
		FirebaseJWKSURL:       configViper.GetString("firebase.jwks_url"),
		AllowedOrigins:        configViper.GetStringSlice("http.allowed_origins"),
		ExperiencePerSentence: configViper.GetInt("journey.experience_per_sentence"),
		SeedDefaults:          configViper.GetBool("journey.seed_defaults"),
		FeedPageSize:          configViper.GetInt("feed.page_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.FirebaseProjectID) == "" {
		return fmt.Errorf("firebase.project_id is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.ExperiencePerSentence <= 0 {
		return fmt.Errorf("journey.experience_per_sentence must be positive")
	}
	if c.FeedPageSize <= 0 {
		return fmt.Errorf("feed.page_size must be positive")
	}
	return nil
}
