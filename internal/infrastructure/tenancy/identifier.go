package tenancy

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ID names a tenant (an Ampairs workspace). The zero value means "no tenant".
type ID string

// DefaultID is the reserved identifier of the shared/system datasource.
const DefaultID ID = "default"

// MaxIDLength keeps identifiers usable as PostgreSQL schema names.
const MaxIDLength = 63

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// ParseID normalizes and validates a raw tenant identifier taken from a
// header, query parameter, token claim or host name. Compatibility forms
// such as full-width letters fold to ASCII before validation.
func ParseID(raw string) (ID, error) {
	s := strings.ToLower(norm.NFKC.String(strings.TrimSpace(raw)))
	if s == "" {
		return "", ErrMissingTenantContext
	}
	if len(s) > MaxIDLength || !idPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenantID, raw)
	}
	return ID(s), nil
}

// MustParseID is ParseID for constants and tests.
func MustParseID(raw string) ID {
	id, err := ParseID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether no tenant is named.
func (id ID) IsZero() bool {
	return id == ""
}

// IsDefault reports whether id is the reserved shared identifier.
func (id ID) IsDefault() bool {
	return id == DefaultID
}

// SchemaName returns the PostgreSQL schema used for the tenant when it lives
// on the shared server. Hyphens are not valid in unquoted identifiers.
func (id ID) SchemaName() string {
	return "ws_" + strings.ReplaceAll(string(id), "-", "_")
}
