package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

	tt := []struct {
		name          string
		serverAddr    string
		databaseDSN   string
		base64Secret  string
		migrationsDir string
		expectErr     bool
	}{
		{
			name:          "valid config",
			serverAddr:    "localhost:8000",
			databaseDSN:   "postgres://localhost:5432/chatcore",
			base64Secret:  secret,
			migrationsDir: "migrations",
		},
		{
			name:         "empty server address",
			databaseDSN:  "postgres://localhost:5432/chatcore",
			base64Secret: secret,
			expectErr:    true,
		},
		{
			name:         "empty database DSN",
			serverAddr:   "localhost:8000",
			base64Secret: secret,
			expectErr:    true,
		},
		{
			name:        "empty signing secret",
			serverAddr:  "localhost:8000",
			databaseDSN: "postgres://localhost:5432/chatcore",
			expectErr:   true,
		},
		{
			name:         "signing secret not base64",
			serverAddr:   "localhost:8000",
			databaseDSN:  "postgres://localhost:5432/chatcore",
			base64Secret: "not base64!",
			expectErr:    true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.serverAddr, tc.databaseDSN, tc.base64Secret,
				[]string{"http://localhost:3000"}, tc.migrationsDir)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.serverAddr, cfg.ServerAddr)
			assert.Equal(t, tc.databaseDSN, cfg.DatabaseDSN)
			assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), cfg.SigningKey)
			assert.Equal(t, tc.migrationsDir, cfg.MigrationsDir)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHATCORE_ADDR", "0.0.0.0:9000")
	t.Setenv("CHATCORE_DATABASE_DSN", "postgres://db:5432/chatcore")
	t.Setenv("CHATCORE_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	env, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", env.Addr)
	assert.Equal(t, "postgres://db:5432/chatcore", env.DatabaseDSN)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, env.AllowedOrigins)
}

func TestFromEnv_Defaults(t *testing.T) {
	env, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, "localhost:8000", env.Addr)
	assert.Equal(t, "migrations", env.MigrationsDir)
}
