package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
  corsOrigins: ["https://app.example"]
database:
  driver: mysql
  host: db.internal
  port: 3306
  user: rcm
  password: pw
  name: market
workflow:
  startURL: http://engine:5678/webhook/start
  resumeURL: http://engine:5678/webhook/resume
  issueTimeout: 5s
outbox:
  maxAttempts: 5
auth:
  jwtSecret: from-file
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Workflow.IssueTimeout)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)

	// defaults fill the rest
	assert.Equal(t, 10, cfg.Workflow.DefaultMaxPapers)
	assert.Equal(t, "@every 15s", cfg.Outbox.Schedule)
	assert.Equal(t, 20, cfg.Outbox.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Outbox.Backoff)
	assert.Equal(t, 2*time.Second, cfg.Checkpoint.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Checkpoint.StallAfter)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.Equal(t, 60, cfg.Server.RateLimit.Capacity)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "rcm:pw@tcp(db.internal:3306)/market?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DatabaseDSN())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RCM_AUTH_JWT_SECRET", "from-env")
	t.Setenv("RCM_DATABASE_DRIVER", "sqlite")
	t.Setenv("RCM_DATABASE_PATH", "/tmp/rcm.db")
	t.Setenv("RCM_SERVER_RATE_LIMIT_CAPACITY", "5")
	t.Setenv("RCM_CHECKPOINT_STALL_AFTER", "90s")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Server.RateLimit.Capacity)
	assert.Equal(t, 90*time.Second, cfg.Checkpoint.StallAfter)
	assert.Equal(t, "/tmp/rcm.db", cfg.DatabaseDSN())
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, sampleYAML))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"driver":       {func(c *Config) { c.Database.Driver = "oracle" }, "not supported"},
		"start url":    {func(c *Config) { c.Workflow.StartURL = "" }, "workflow.startURL: missing"},
		"resume sch":   {func(c *Config) { c.Workflow.ResumeURL = "ftp://engine/resume" }, "scheme"},
		"resume host":  {func(c *Config) { c.Workflow.ResumeURL = "http:///resume" }, "missing host"},
		"jwt secret":   {func(c *Config) { c.Auth.JWTSecret = "  " }, "jwtSecret"},
		"max attempts": {func(c *Config) { c.Outbox.MaxAttempts = -1 }, "maxAttempts"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	var cfg Config
	cfg.Database.Host = "pg"
	cfg.Database.User = "rcm"
	cfg.Database.Password = "pw"
	cfg.Database.Name = "market"
	assert.Equal(t, "host=pg port=5432 user=rcm password=pw dbname=market sslmode=disable", cfg.DatabaseDSN())

	cfg.Database.DSN = "postgres://explicit"
	assert.Equal(t, "postgres://explicit", cfg.DatabaseDSN())
}
