package roles

import "strings"

// DefaultRole is assigned when a department has no mapping. Production is
// the narrowest document-level role (approved procedures and own-department
// records only), which keeps an unmapped hire from over-disclosing.
const DefaultRole = RoleProduction

// departmentRoles is the fixed many-to-one department mapping. Lookup is
// case-insensitive on the trimmed department string.
var departmentRoles = map[string]Role{
	"quality assurance":        RoleQA,
	"quality":                  RoleQA,
	"quality control":          RoleQC,
	"research & development":   RoleQC,
	"analytical development":   RoleQC,
	"manufacturing":            RoleProduction,
	"production":               RoleProduction,
	"engineering":              RoleProduction,
	"facilities":               RoleProduction,
	"regulatory affairs":       RoleRegulatory,
	"regulatory":               RoleRegulatory,
	"business development":     RoleSales,
	"sales":                    RoleSales,
	"sales & marketing":        RoleSales,
	"commercial":               RoleSales,
	"executive leadership":     RoleManagement,
	"executive":                RoleManagement,
	"senior management":        RoleManagement,
	"information technology":   RoleAdmin,
	"it":                       RoleAdmin,
	"it & systems":             RoleAdmin,
}

// MapDepartment resolves the role for an organizational department.
// Unrecognized departments fall back to DefaultRole; it never fails.
func MapDepartment(department string) Role {
	key := strings.ToLower(strings.TrimSpace(department))
	if role, ok := departmentRoles[key]; ok {
		return role
	}
	return DefaultRole
}
