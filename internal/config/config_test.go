package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-gateway/internal/domain"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
}

func TestLoad_Defaults(t *testing.T) {
	setSecret(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), cfg.Auth.SigningKey)
	assert.Equal(t, "JWT", cfg.Auth.CookieName)
	assert.Equal(t, LedgerBackendRedis, cfg.Ledger.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Ledger.Timeout)
	assert.Equal(t, domain.FailClosed, cfg.Ledger.UnavailablePolicy)
	assert.Equal(t, domain.FailClosed, cfg.Identity.ExistsErrorPolicy)
	assert.Equal(t, domain.FailOpen, cfg.Identity.EnabledErrorPolicy)
	assert.Equal(t, "http://localhost:8081", cfg.Identity.URL)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoad_MissingSecretIsFatal(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingSigningKey)
}

func TestLoad_InvalidBase64Secret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "not base64!!")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid AUTH_JWT_SECRET")
}

func TestLoad_Overrides(t *testing.T) {
	setSecret(t)
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("LEDGER_UNAVAILABLE_POLICY", "fail-open")
	t.Setenv("LEDGER_TIMEOUT", "250ms")
	t.Setenv("IDENTITY_URL", "http://users.internal:9000/")
	t.Setenv("IDENTITY_ENABLED_ERROR_POLICY", "FAIL-CLOSED")
	t.Setenv("REVOKE_TIMEOUT", "garbage")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LedgerBackendPostgres, cfg.Ledger.Backend)
	assert.Equal(t, domain.FailOpen, cfg.Ledger.UnavailablePolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.Ledger.Timeout)
	assert.Equal(t, "http://users.internal:9000", cfg.Identity.URL)
	assert.Equal(t, domain.FailClosed, cfg.Identity.EnabledErrorPolicy)
	assert.Equal(t, 3*time.Second, cfg.Auth.RevokeTimeout)
}

func TestLoad_RejectsUnknownPolicyAndBackend(t *testing.T) {
	setSecret(t)
	t.Setenv("IDENTITY_EXISTS_ERROR_POLICY", "sometimes")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDENTITY_EXISTS_ERROR_POLICY")

	t.Setenv("IDENTITY_EXISTS_ERROR_POLICY", "")
	t.Setenv("LEDGER_BACKEND", "etcd")

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_BACKEND")
}
