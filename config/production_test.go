package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	cfg := LoadFromEnv()
	cfg.JWT.SecretKey = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("WHATSAPP_MODE", "")

	cfg := LoadFromEnv()

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "mock", cfg.WhatsApp.Mode)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessTokenTTL)
	assert.False(t, cfg.Security.CaptchaEnabled)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("WHATSAPP_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("CACHE_DASHBOARD_TTL", "90s")
	t.Setenv("CAPTCHA_ENABLED", "true")

	cfg := LoadFromEnv()

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 2.5, cfg.WhatsApp.RequestsPerSecond)
	assert.Equal(t, 90*time.Second, cfg.Cache.DashboardTTL)
	assert.True(t, cfg.Security.CaptchaEnabled)
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("LOG_COMPRESS", "maybe")

	cfg := LoadFromEnv()

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Logging.Compress)
}

func TestValidateProductionConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ProductionConfig)
		wantErr []string
	}{
		{name: "valid", mutate: func(*ProductionConfig) {}},
		{
			name:    "short secret",
			mutate:  func(c *ProductionConfig) { c.JWT.SecretKey = "short" },
			wantErr: []string{"JWT_SECRET_KEY"},
		},
		{
			name: "cloud transport without phone number id",
			mutate: func(c *ProductionConfig) {
				c.WhatsApp.Mode = "cloud"
				c.WhatsApp.PhoneNumberID = ""
			},
			wantErr: []string{"WHATSAPP_PHONE_NUMBER_ID"},
		},
		{
			name: "errors are collected together",
			mutate: func(c *ProductionConfig) {
				c.Server.Port = 0
				c.Logging.Output = "syslog"
				c.Security.BcryptCost = 4
			},
			wantErr: []string{"SERVER_PORT", "LOG_OUTPUT", "BCRYPT_COST"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateProductionConfig(cfg)
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, fragment := range tt.wantErr {
				assert.Contains(t, err.Error(), fragment)
			}
		})
	}
}
