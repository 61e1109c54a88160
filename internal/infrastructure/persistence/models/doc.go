// Package models contains GORM persistence models. They are kept apart from
// the domain entities so the domain stays free of ORM tags.
//
// Two groups of tables exist:
//   - master tables (workspace.go) live only in the shared default database
//   - tenant tables (customer.go, activity.go) exist once per tenant datasource
//
// Tenant tables carry no tenant column: the datasource a row is stored in
// decides who owns it.
package models

// MasterModels returns the models migrated into the shared database.
func MasterModels() []any {
	return []any{&WorkspaceModel{}, &WorkspaceMemberModel{}}
}

// TenantModels returns the models migrated into every tenant datasource.
func TenantModels() []any {
	return []any{&CustomerModel{}, &ActivityModel{}}
}
