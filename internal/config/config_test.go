package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9080, cfg.Server.GRPCPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "emergency_response", cfg.Database.Name)
	assert.Equal(t, "file://migrations", cfg.Database.MigrationsPath)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, "emergency-response", cfg.Auth.Issuer)

	assert.Equal(t, 256, cfg.Relay.SendBufferSize)
	assert.Equal(t, 60*time.Second, cfg.Relay.PongWait)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment: "development",
			Server:      ServerConfig{HTTPPort: 8080},
			Relay:       RelayConfig{SendBufferSize: 256},
		}
	}

	t.Run("Defaults Pass", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("Production Requires JWT Secret", func(t *testing.T) {
		cfg := valid()
		cfg.Environment = "production"
		assert.Error(t, cfg.Validate())

		cfg.Auth.JWTSecret = "s3cret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Port Out Of Range", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HTTPPort = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("Send Buffer Must Be Positive", func(t *testing.T) {
		cfg := valid()
		cfg.Relay.SendBufferSize = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		Name:     "emergency_response",
		Username: "app",
		Password: "pw",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=app password=pw dbname=emergency_response sslmode=require",
		db.ConnectionString())
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", r.Addr())
}
