// Package authz evaluates a tenant role against a required permission using
// a single role to permission table.
package authz

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/wolfeidau/autoshop/internal/autherr"
	"github.com/wolfeidau/autoshop/internal/models"
	"gopkg.in/yaml.v3"
)

// Permission represents an authorized action within a tenant.
type Permission string

const (
	PermProfileRead        Permission = "profile:read"
	PermAppointmentsRead   Permission = "appointments:read"
	PermAppointmentsCreate Permission = "appointments:create"
	PermAppointmentsManage Permission = "appointments:manage" // act on any customer's appointments
	PermMembersRead        Permission = "members:read"
	PermMembersManage      Permission = "members:manage"
)

// knownPermissions guards the table against typos.
var knownPermissions = []Permission{
	PermProfileRead,
	PermAppointmentsRead,
	PermAppointmentsCreate,
	PermAppointmentsManage,
	PermMembersRead,
	PermMembersManage,
}

// hierarchy lists roles from least to most privileged.
var hierarchy = []models.Role{models.RoleCustomer, models.RoleAdvisor, models.RoleOwner}

//go:embed permissions.yaml
var defaultTable []byte

type document struct {
	Roles map[models.Role][]Permission `yaml:"roles"`
}

// Table maps roles to their permission sets.
type Table struct {
	perms map[models.Role]map[Permission]struct{}
}

// Default returns the table compiled into the binary.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded permission table is invalid: %v", err))
	}
	return t
}

// LoadFile reads and validates a permission table from path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a permission table document.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse permission table: %w", err)
	}

	t := &Table{perms: make(map[models.Role]map[Permission]struct{}, len(doc.Roles))}

	for role, perms := range doc.Roles {
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q in permission table", role)
		}
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			if !slices.Contains(knownPermissions, p) {
				return nil, fmt.Errorf("unknown permission %q for role %s", p, role)
			}
			set[p] = struct{}{}
		}
		t.perms[role] = set
	}

	for i, role := range hierarchy {
		if _, ok := t.perms[role]; !ok {
			return nil, fmt.Errorf("permission table is missing role %s", role)
		}
		if i == 0 {
			continue
		}
		lower := hierarchy[i-1]
		for p := range t.perms[lower] {
			if _, ok := t.perms[role][p]; !ok {
				return nil, fmt.Errorf("role %s must include %s permission %q", role, lower, p)
			}
		}
	}

	return t, nil
}

// Has reports whether role grants perm.
func (t *Table) Has(role models.Role, perm Permission) bool {
	set, ok := t.perms[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// Authorize returns nil when role grants perm, and an error of kind
// Forbidden otherwise.
func (t *Table) Authorize(role models.Role, perm Permission) error {
	if !t.Has(role, perm) {
		return fmt.Errorf("%w: role %q lacks %s", autherr.ErrForbidden, role, perm)
	}
	return nil
}

// Permissions returns the sorted permission set of role.
func (t *Table) Permissions(role models.Role) []Permission {
	result := make([]Permission, 0, len(t.perms[role]))
	for p := range t.perms[role] {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
