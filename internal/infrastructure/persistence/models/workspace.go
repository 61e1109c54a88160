package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ampairs/backend/internal/domain/workspace"
)

// WorkspaceModel is the persistence model for a workspace in the master database.
type WorkspaceModel struct {
	BaseModel
	Slug         string           `gorm:"type:varchar(63);not null;uniqueIndex"`
	Name         string           `gorm:"type:varchar(200);not null"`
	Status       workspace.Status `gorm:"type:varchar(20);not null;default:'pending';index"`
	DBHost       string           `gorm:"column:db_host;type:varchar(255)"`
	DBPort       int              `gorm:"column:db_port"`
	DBName       string           `gorm:"column:db_name;type:varchar(63)"`
	DBSchema     string           `gorm:"column:db_schema;type:varchar(63)"`
	MaxOpenConns int              `gorm:"not null;default:0"`
	MaxIdleConns int              `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (WorkspaceModel) TableName() string {
	return "workspaces"
}

// ToDomain converts the persistence model to a domain Workspace.
func (m *WorkspaceModel) ToDomain() *workspace.Workspace {
	return &workspace.Workspace{
		BaseEntity: m.Entity(),
		Slug:       m.Slug,
		Name:       m.Name,
		Status:     m.Status,
		DataSource: workspace.DataSource{
			Host:         m.DBHost,
			Port:         m.DBPort,
			DBName:       m.DBName,
			Schema:       m.DBSchema,
			MaxOpenConns: m.MaxOpenConns,
			MaxIdleConns: m.MaxIdleConns,
		},
	}
}

// FromDomain populates the persistence model from a domain Workspace.
func (m *WorkspaceModel) FromDomain(w *workspace.Workspace) {
	m.SetEntity(w.BaseEntity)
	m.Slug = w.Slug
	m.Name = w.Name
	m.Status = w.Status
	m.DBHost = w.DataSource.Host
	m.DBPort = w.DataSource.Port
	m.DBName = w.DataSource.DBName
	m.DBSchema = w.DataSource.Schema
	m.MaxOpenConns = w.DataSource.MaxOpenConns
	m.MaxIdleConns = w.DataSource.MaxIdleConns
}

// WorkspaceFromDomain creates a new persistence model from a domain Workspace.
func WorkspaceFromDomain(w *workspace.Workspace) *WorkspaceModel {
	m := &WorkspaceModel{}
	m.FromDomain(w)
	return m
}

// WorkspaceMemberModel links a user to a workspace.
type WorkspaceMemberModel struct {
	WorkspaceID uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID      `gorm:"type:uuid;primaryKey;index"`
	Role        workspace.Role `gorm:"type:varchar(20);not null;default:'member'"`
	JoinedAt    time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WorkspaceMemberModel) TableName() string {
	return "workspace_members"
}
