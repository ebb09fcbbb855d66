package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKIEBaseURL(t *testing.T) {
	const fallback = "https://api.kie.ai"

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty uses fallback", "", fallback},
		{"marketing host forced to api subdomain", "https://kie.ai", "https://api.kie.ai"},
		{"bare host gets scheme", "kie.ai", "https://api.kie.ai"},
		{"api host kept", "https://api.kie.ai", "https://api.kie.ai"},
		{"custom host kept", "https://proxy.internal:8443", "https://proxy.internal:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeKIEBaseURL(tt.raw, fallback))
		})
	}
}

func TestLoadReportsMissingVariables(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", "")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("NANO_BANANA_API_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "BOT_TOKEN")
	assert.ErrorContains(t, err, "MYSQL_DSN")
	assert.ErrorContains(t, err, "NANO_BANANA_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/miniapp?parseTime=true")
	t.Setenv("NANO_BANANA_API_KEY", "key")
	t.Setenv("S3_BUCKET", "")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, 10, cfg.DefaultCost)
	assert.Equal(t, 60, cfg.PollMaxAttempts)
	assert.False(t, cfg.ArchiveEnabled())
}
