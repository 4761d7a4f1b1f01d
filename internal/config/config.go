package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. RCM_DATABASE_DSN.
const EnvPrefix = "RCM"

type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"corsOrigins" split_words:"true"`
		RateLimit   struct {
			Capacity        int `yaml:"capacity"`
			RefillPerSecond int `yaml:"refillPerSecond" split_words:"true"`
		} `yaml:"rateLimit" split_words:"true"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Path     string `yaml:"path"`
	} `yaml:"database"`

	Workflow struct {
		StartURL         string        `yaml:"startURL" split_words:"true"`
		ResumeURL        string        `yaml:"resumeURL" split_words:"true"`
		IssueTimeout     time.Duration `yaml:"issueTimeout" split_words:"true"`
		DefaultMaxPapers int           `yaml:"defaultMaxPapers" split_words:"true"`
	} `yaml:"workflow"`

	Outbox struct {
		Schedule    string        `yaml:"schedule"`
		BatchSize   int           `yaml:"batchSize" split_words:"true"`
		MaxAttempts int           `yaml:"maxAttempts" split_words:"true"`
		Backoff     time.Duration `yaml:"backoff"`
	} `yaml:"outbox"`

	Checkpoint struct {
		PollInterval time.Duration `yaml:"pollInterval" split_words:"true"`
		StallAfter   time.Duration `yaml:"stallAfter" split_words:"true"`
	} `yaml:"checkpoint"`

	Auth struct {
		JWTSecret   string `yaml:"jwtSecret" split_words:"true"`
		EngineToken string `yaml:"engineToken" split_words:"true"`
	} `yaml:"auth"`

	Payment struct {
		StripeSecretKey string `yaml:"stripeSecretKey" split_words:"true"`
		WebhookSecret   string `yaml:"webhookSecret" split_words:"true"`
		SuccessURL      string `yaml:"successURL" split_words:"true"`
		CancelURL       string `yaml:"cancelURL" split_words:"true"`
		Currency        string `yaml:"currency"`
	} `yaml:"payment"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey" split_words:"true"`
		SecretKey  string `yaml:"secretKey" split_words:"true"`
		BucketName string `yaml:"bucketName" split_words:"true"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL" split_words:"true"`
	} `yaml:"minio"`

	Log struct {
		Development bool `yaml:"development"`
	} `yaml:"log"`
}

// Load baca file config.yaml, lalu override dari .env / environment.
// A missing file is fine when everything comes from the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 60
	}
	if c.Server.RateLimit.RefillPerSecond == 0 {
		c.Server.RateLimit.RefillPerSecond = 1
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Workflow.IssueTimeout == 0 {
		c.Workflow.IssueTimeout = 10 * time.Second
	}
	if c.Workflow.DefaultMaxPapers == 0 {
		c.Workflow.DefaultMaxPapers = 10
	}
	if c.Outbox.Schedule == "" {
		c.Outbox.Schedule = "@every 15s"
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 20
	}
	if c.Outbox.MaxAttempts == 0 {
		c.Outbox.MaxAttempts = 3
	}
	if c.Outbox.Backoff == 0 {
		c.Outbox.Backoff = 30 * time.Second
	}
	if c.Checkpoint.PollInterval == 0 {
		c.Checkpoint.PollInterval = 2 * time.Second
	}
	if c.Checkpoint.StallAfter == 0 {
		c.Checkpoint.StallAfter = 5 * time.Minute
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "usd"
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "mysql", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q not supported", c.Database.Driver))
	}
	for name, raw := range map[string]string{"workflow.startURL": c.Workflow.StartURL, "workflow.resumeURL": c.Workflow.ResumeURL} {
		if err := checkURL(raw); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		problems = append(problems, "auth.jwtSecret is required")
	}
	if c.Outbox.MaxAttempts < 1 {
		problems = append(problems, "outbox.maxAttempts must be >= 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return errors.New("missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// DatabaseDSN returns the configured DSN, or builds one for the driver.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	switch strings.ToLower(c.Database.Driver) {
	case "mysql":
		return c.MySQLDSN()
	case "sqlite":
		if c.Database.Path != "" {
			return c.Database.Path
		}
		return "data/research-market.db"
	}
	return c.PostgresDSN()
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq keyword DSN.
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host, port, c.Database.User, c.Database.Password, c.Database.Name)
}
