// Package workspace models the tenants of the platform. Workspaces live in the
// shared master database; each active workspace owns one datasource.
package workspace

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ampairs/backend/internal/domain/shared"
)

// Status represents the lifecycle of a workspace
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Role of a member inside a workspace
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// reservedSlug names the shared database and can never be a workspace
const reservedSlug = "default"

// Workspace is a tenant. The slug is the tenant identifier clients send.
type Workspace struct {
	shared.BaseEntity
	Slug   string
	Name   string
	Status Status
	// DataSource overrides the shared server settings. Zero values mean the
	// workspace lives in its own schema on the shared server.
	DataSource DataSource
}

// DataSource holds the connection overrides of a workspace
type DataSource struct {
	Host         string
	Port         int
	DBName       string
	Schema       string
	MaxOpenConns int
	MaxIdleConns int
}

// Member links a user to a workspace
type Member struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	Role        Role
	JoinedAt    time.Time
}

// New creates a pending workspace
func New(slug, name string) (*Workspace, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	name = strings.TrimSpace(name)
	if !slugPattern.MatchString(slug) || slug == reservedSlug {
		return nil, shared.NewDomainError("INVALID_SLUG", "Workspace slug must be 2-63 lowercase letters, digits or '-'")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Workspace name cannot be empty")
	}
	return &Workspace{
		BaseEntity: shared.NewBaseEntity(),
		Slug:       slug,
		Name:       name,
		Status:     StatusPending,
	}, nil
}

// Activate marks the workspace ready to receive traffic
func (w *Workspace) Activate() {
	w.Status = StatusActive
	w.Touch()
}

// Suspend removes the workspace from routing without deleting its data
func (w *Workspace) Suspend() {
	w.Status = StatusSuspended
	w.Touch()
}

// IsActive reports whether the workspace should be routed
func (w *Workspace) IsActive() bool {
	return w.Status == StatusActive
}

// SchemaName returns the schema the workspace lives in. A workspace with its
// own database and no explicit schema uses that database's default schema,
// reported as "".
func (w *Workspace) SchemaName() string {
	switch {
	case w.DataSource.Schema != "":
		return w.DataSource.Schema
	case w.DataSource.DBName != "":
		return ""
	}
	return "ws_" + strings.ReplaceAll(w.Slug, "-", "_")
}
