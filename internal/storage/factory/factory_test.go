package factory

import (
	"testing"

	"github.com/DjordjeVuckovic/etl-runner/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"AUDIT_BACKEND", "ES_AUDIT_INDEX", "AUDIT_TABLE", "PG_CONNECTION_STRING", "ES_ADDRESSES", "ES_USERNAME", "ES_PASSWORD"} {
		t.Setenv(key, "")
	}
}

func TestLoadEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, AuditLog, cfg.Audit)
	assert.Equal(t, audit.DefaultIndex, cfg.AuditIndex)
	assert.Equal(t, audit.DefaultTable, cfg.AuditTable)
	assert.Nil(t, cfg.Pg)
	assert.Nil(t, cfg.Es)
}

func TestLoadEnv_Backends(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_BACKEND", "es")
	t.Setenv("ES_ADDRESSES", "http://es1:9200, http://es2:9200,")
	t.Setenv("PG_CONNECTION_STRING", "postgres://etl@localhost/etl")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Es.Addresses)
	assert.Equal(t, "postgres://etl@localhost/etl", cfg.Pg.ConnStr)
}

func TestLoadEnv_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_BACKEND", "kafka")
	_, err := LoadEnv()
	assert.ErrorContains(t, err, "invalid AUDIT_BACKEND")

	t.Setenv("AUDIT_BACKEND", "pg")
	_, err = LoadEnv()
	assert.ErrorContains(t, err, "requires PG_CONNECTION_STRING")

	t.Setenv("AUDIT_BACKEND", "es")
	_, err = LoadEnv()
	assert.ErrorContains(t, err, "requires ES_ADDRESSES")
}

func TestNewAuditor(t *testing.T) {
	b := &Backends{}

	a, err := NewAuditor(t.Context(), &StorageConfig{Audit: AuditVoid}, b)
	require.NoError(t, err)
	assert.IsType(t, audit.Void{}, a)

	a, err = NewAuditor(t.Context(), &StorageConfig{Audit: AuditLog}, b)
	require.NoError(t, err)
	assert.IsType(t, &audit.Log{}, a)

	_, err = NewAuditor(t.Context(), &StorageConfig{Audit: AuditPG}, b)
	assert.Error(t, err)

	assert.Len(t, b.HealthCheckers(), 1)
}
