package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ampairs/backend/internal/domain/workspace"
	"github.com/ampairs/backend/internal/infrastructure/config"
	"github.com/ampairs/backend/internal/infrastructure/persistence/models"
	"github.com/ampairs/backend/internal/infrastructure/persistence/tenant"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// GormWorkspaceRepository stores workspaces in the master database. It is
// also the tenant registry: every active workspace contributes one datasource.
type GormWorkspaceRepository struct {
	db   *gorm.DB
	base config.DatabaseConfig
}

// NewGormWorkspaceRepository creates a repository over the master database.
// base supplies the server settings workspaces inherit.
func NewGormWorkspaceRepository(db *gorm.DB, base config.DatabaseConfig) *GormWorkspaceRepository {
	return &GormWorkspaceRepository{db: db, base: base}
}

// FindBySlug finds a workspace by its tenant identifier
func (r *GormWorkspaceRepository) FindBySlug(ctx context.Context, slug string) (*workspace.Workspace, error) {
	var model models.WorkspaceModel
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workspace.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive returns all active workspaces ordered by slug
func (r *GormWorkspaceRepository) FindActive(ctx context.Context) ([]workspace.Workspace, error) {
	var rows []models.WorkspaceModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", workspace.StatusActive).
		Order("slug").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]workspace.Workspace, len(rows))
	for i := range rows {
		result[i] = *rows[i].ToDomain()
	}
	return result, nil
}

// Save creates or updates a workspace
func (r *GormWorkspaceRepository) Save(ctx context.Context, w *workspace.Workspace) error {
	return r.db.WithContext(ctx).Save(models.WorkspaceFromDomain(w)).Error
}

// AddMember adds a user to a workspace; adding an existing member updates the role
func (r *GormWorkspaceRepository) AddMember(ctx context.Context, m workspace.Member) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	return r.db.WithContext(ctx).Save(&models.WorkspaceMemberModel{
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		Role:        m.Role,
		JoinedAt:    m.JoinedAt,
	}).Error
}

// IsMember reports whether the user belongs to the workspace with the given slug
func (r *GormWorkspaceRepository) IsMember(ctx context.Context, slug string, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WorkspaceMemberModel{}).
		Joins("JOIN workspaces ON workspaces.id = workspace_members.workspace_id").
		Where("workspaces.slug = ? AND workspace_members.user_id = ?", slug, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ActiveDataSources implements tenant.Registry. Workspaces without their own
// host or database live in a schema on the shared server.
func (r *GormWorkspaceRepository) ActiveDataSources(ctx context.Context) ([]tenant.Spec, error) {
	workspaces, err := r.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	specs := make([]tenant.Spec, 0, len(workspaces))
	for i := range workspaces {
		w := &workspaces[i]
		// slugs are validated on creation; rows edited by hand may not be
		id, err := tenancy.ParseID(w.Slug)
		if err != nil || id.IsDefault() {
			continue
		}
		specs = append(specs, tenant.Spec{
			Tenant: id,
			Config: r.base.ForDataSource(config.DataSourceConfig{
				Tenant:       w.Slug,
				Host:         w.DataSource.Host,
				Port:         w.DataSource.Port,
				DBName:       w.DataSource.DBName,
				Schema:       w.SchemaName(),
				MaxOpenConns: w.DataSource.MaxOpenConns,
				MaxIdleConns: w.DataSource.MaxIdleConns,
			}),
		})
	}
	return specs, nil
}

// Ensure GormWorkspaceRepository implements the interfaces it serves
var (
	_ workspace.Repository = (*GormWorkspaceRepository)(nil)
	_ tenant.Registry      = (*GormWorkspaceRepository)(nil)
)
