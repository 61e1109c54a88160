package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

func TestSpecFromConfig(t *testing.T) {
	base := config.DatabaseConfig{
		Host: "db", Port: 5432, User: "ampairs", DBName: "ampairs",
		SSLMode: "disable", MaxOpenConns: 25, MaxIdleConns: 5,
	}

	t.Run("shared server gets its own schema", func(t *testing.T) {
		spec, err := SpecFromConfig(base, config.DataSourceConfig{Tenant: "Acme-Corp"})
		require.NoError(t, err)
		assert.Equal(t, tenancy.ID("acme-corp"), spec.Tenant)
		assert.Equal(t, "ws_acme_corp", spec.Config.Schema)
		assert.Equal(t, "db", spec.Config.Host)
	})

	t.Run("dedicated database keeps its default schema", func(t *testing.T) {
		spec, err := SpecFromConfig(base, config.DataSourceConfig{Tenant: "globex", Host: "globex-db", DBName: "globex", MaxOpenConns: 4})
		require.NoError(t, err)
		assert.Empty(t, spec.Config.Schema)
		assert.Equal(t, "globex-db", spec.Config.Host)
		assert.Equal(t, 4, spec.Config.MaxOpenConns)
		assert.Equal(t, 4, spec.Config.MaxIdleConns, "idle connections never exceed open ones")
	})

	t.Run("explicit schema", func(t *testing.T) {
		spec, err := SpecFromConfig(base, config.DataSourceConfig{Tenant: "initech", Schema: "legacy_initech"})
		require.NoError(t, err)
		assert.Equal(t, "legacy_initech", spec.Config.Schema)
	})

	t.Run("invalid tenant", func(t *testing.T) {
		_, err := SpecFromConfig(base, config.DataSourceConfig{Tenant: "bad_tenant!"})
		assert.ErrorIs(t, err, tenancy.ErrInvalidTenantID)
	})
}
