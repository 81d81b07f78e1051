package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load("api")
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.RunMode)
	assert.Equal(t, 5, cfg.IdentityMaxRetries)
	assert.Equal(t, 1000, cfg.MaxSlugAttempts)
	assert.Equal(t, time.Hour, cfg.ViewDedupWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.JwtTTL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load("api")
	assert.ErrorContains(t, err, "MONGO_URI")
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MAX_SLUG_ATTEMPTS", "lots")

	_, err := Load("api")
	assert.ErrorContains(t, err, "MAX_SLUG_ATTEMPTS")
}
