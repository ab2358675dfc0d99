package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_Defaults(t *testing.T) {
	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "HS256", cfg.JWT.SigningMethod)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, 30*time.Second, cfg.JWT.ClockSkew)
	assert.Equal(t, 5, cfg.Login.MaxAttempts)
	assert.Equal(t, 4, cfg.Audit.Workers)
	assert.Equal(t, "auth_api", cfg.Mongo.Database)
	assert.False(t, cfg.Bootstrap.Enabled())
}

func TestProcess_Overrides(t *testing.T) {
	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"ENV":                  "production",
		"JWT_SIGNING_METHOD":   "EdDSA",
		"JWT_PRIVATE_KEY_FILE": "/etc/auth/ed25519.pem",
		"JWT_ACCESS_TTL":       "5m",
		"LOGIN_MAX_ATTEMPTS":   "3",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 3, cfg.Login.MaxAttempts)
}

func TestProcess_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":     {},
		"missing key file":   {"JWT_SIGNING_METHOD": "RS256"},
		"unknown method":     {"JWT_SIGNING_METHOD": "HS512", "JWT_SECRET": "x"},
		"zero ttl":           {"JWT_SECRET": "x", "JWT_ACCESS_TTL": "0s"},
		"sub-second ttl":     {"JWT_SECRET": "x", "JWT_ACCESS_TTL": "500ms"},
		"sub-second refresh": {"JWT_SECRET": "x", "JWT_REFRESH_TTL": "999ms"},
		"partial seed":       {"JWT_SECRET": "x", "BOOTSTRAP_ADMIN_USERNAME": "root"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Process(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}
