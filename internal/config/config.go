// Package config loads the server configuration.
//
// SOURCES, LOWEST PRIORITY FIRST:
//  1. envDefault tags on the structs below
//  2. an optional .env file (path set with -env-file)
//  3. the process environment
//  4. command-line flags
//
// The .env file is read into a map and never written into the process
// environment, so loading config has no side effects and tests can pass
// their own environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"reflect"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/resumelens/resume-analyzer/internal/auth"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the full server configuration.
type Config struct {
	Server   Server
	Auth     Auth
	Database Database
	OAuth    OAuth
	AI       AI
	Metrics  Metrics
}

type Server struct {
	Port        int    `env:"PORT"         envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// PublicURL is where this API is reachable from a browser. OAuth
	// callback URLs are built from it.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Auth struct {
	JWTSecret  string        `env:"JWT_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL"   envDefault:"720h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`

	// RateLimit applies per client IP to register and login, in the
	// "<limit>-<S|M|H|D>" notation.
	RateLimit  string `env:"AUTH_RATE_LIMIT" envDefault:"20-M"`
	TrustProxy bool   `env:"TRUST_PROXY"`
}

type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DB_DSN"    envDefault:"data/resume-analyzer.db"`
}

type OAuth struct {
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
}

type AI struct {
	Provider         string `env:"AI_PROVIDER"        envDefault:"openai"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	Model            string `env:"AI_MODEL"`
}

type Metrics struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load builds the configuration from args (without the program name) and
// environ (os.Environ() format), then validates it.
func Load(args, environ []string) (*Config, error) {
	flagCfg, envFile, err := parseFlags(args)
	if err != nil {
		return nil, err
	}

	vars, err := readDotEnv(envFile)
	if err != nil {
		return nil, err
	}
	for k, v := range env.ToMap(environ) {
		vars[k] = v
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", byEnvKey(err))
	}

	if err := mergo.Merge(cfg, flagCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("config: merging flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseFlags returns a Config holding only the values given on the command
// line; everything else is zero and so ignored by the merge.
func parseFlags(args []string) (*Config, string, error) {
	flags := flag.NewFlagSet("resume-analyzer", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	cfg := &Config{}
	envFile := flags.String("env-file", ".env", "optional dotenv file")
	flags.IntVar(&cfg.Server.Port, "port", 0, "HTTP listen port")
	flags.StringVar(&cfg.Server.Environment, "environment", "", "development or production")
	flags.StringVar(&cfg.Server.LogLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&cfg.Database.Driver, "db-driver", "", "sqlite or postgres")
	flags.StringVar(&cfg.Database.DSN, "db-dsn", "", "database file path or connection string")

	if err := flags.Parse(args); err != nil {
		return nil, "", fmt.Errorf("config: parsing flags: %w", err)
	}
	return cfg, *envFile, nil
}

// byEnvKey re-reports env's per-field parse errors under the variable name,
// since env only knows the Go field ("TokenTTL" rather than "TOKEN_TTL").
func byEnvKey(err error) error {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return err
	}

	keys := envKeys(reflect.TypeOf(Config{}))
	errs := make([]error, 0, len(agg.Errors))
	for _, e := range agg.Errors {
		var pe env.ParseError
		if errors.As(e, &pe) {
			if key, ok := keys[pe.Name]; ok {
				e = fmt.Errorf("%s: %w", key, pe.Err)
			}
		}
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// envKeys maps field names to their env tag, one level of nesting deep.
// Field names are unique across the sections of Config.
func envKeys(t reflect.Type) map[string]string {
	keys := make(map[string]string)
	for i := range t.NumField() {
		section := t.Field(i).Type
		if section.Kind() != reflect.Struct {
			continue
		}
		for j := range section.NumField() {
			f := section.Field(j)
			if key, _, _ := strings.Cut(f.Tag.Get("env"), ","); key != "" {
				keys[f.Name] = key
			}
		}
	}
	return keys
}

// readDotEnv reads path into a map. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return vars, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		add("JWT_SECRET must be at least %d characters", auth.MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		add("TOKEN_TTL must be positive")
	}
	if c.Auth.BcryptCost < auth.MinProductionCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		add("BCRYPT_COST must be between %d and %d", auth.MinProductionCost, bcrypt.MaxCost)
	}

	switch c.Server.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		add("ENVIRONMENT must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Server.Environment)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("PORT must be between 1 and 65535")
	}
	if _, err := parseLevel(c.Server.LogLevel); err != nil {
		add("LOG_LEVEL: %w", err)
	}
	for name, raw := range map[string]string{"FRONTEND_URL": c.Server.FrontendURL, "PUBLIC_URL": c.Server.PublicURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add("%s must be an absolute URL, got %q", name, raw)
		}
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		add("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("DB_DSN is required")
	}

	switch c.AI.Provider {
	case "openai", "openrouter":
	default:
		add("AI_PROVIDER must be openai or openrouter, got %q", c.AI.Provider)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether cookies must be Secure and logs JSON.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Server.LogLevel)
	return level
}

// AIAPIKey returns the key for the selected AI provider, or "" when none is
// configured, in which case the analysis routes are not mounted.
func (c *Config) AIAPIKey() string {
	if c.AI.Provider == "openrouter" {
		return c.AI.OpenRouterAPIKey
	}
	return c.AI.OpenAIAPIKey
}

func (c *Config) GoogleEnabled() bool {
	return c.OAuth.GoogleClientID != "" && c.OAuth.GoogleClientSecret != ""
}

func (c *Config) GitHubEnabled() bool {
	return c.OAuth.GitHubClientID != "" && c.OAuth.GitHubClientSecret != ""
}

// CallbackURL is the OAuth redirect URI registered with provider.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.Server.PublicURL, "/") + "/api/auth/" + provider + "/callback"
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
