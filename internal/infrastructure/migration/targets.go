package migration

import (
	"fmt"
	"sort"

	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// Database is a target together with the connection settings it runs on
type Database struct {
	Target
	Config config.DatabaseConfig
}

// MasterDatabase targets the shared database holding the workspace registry
func MasterDatabase(cfg config.DatabaseConfig) Database {
	return Database{
		Target: Target{Tenant: tenancy.DefaultID, Schema: cfg.Schema, Scope: ScopeMaster},
		Config: cfg,
	}
}

// TenantDatabases turns routed datasource specs into tenant migration
// targets, ordered by tenant. A non-empty only keeps that single tenant and
// fails when it is not among specs. Tenants sharing one database and schema
// are migrated once.
func TenantDatabases(specs []tenant.Spec, only tenancy.ID) ([]Database, error) {
	seen := make(map[string]tenancy.ID, len(specs))
	out := make([]Database, 0, len(specs))
	for _, spec := range specs {
		if only != "" && spec.Tenant != only {
			continue
		}
		key := spec.Config.DSN()
		if owner, dup := seen[key]; dup {
			if only == "" {
				continue
			}
			return nil, fmt.Errorf("tenant %s shares its datasource with %s", spec.Tenant, owner)
		}
		seen[key] = spec.Tenant
		out = append(out, Database{
			Target: Target{Tenant: spec.Tenant, Schema: spec.Config.Schema, Scope: ScopeTenant},
			Config: spec.Config,
		})
	}
	if only != "" && len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", tenancy.ErrUnknownTenant, only)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tenant < out[j].Tenant })
	return out, nil
}
