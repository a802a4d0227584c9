package roles

import (
	"errors"
	"testing"
)

func TestGetKnownRoles(t *testing.T) {
	for _, role := range All() {
		cfg, err := Get(role)
		if err != nil {
			t.Fatalf("Get(%s): %v", role, err)
		}
		if cfg.ID != role {
			t.Fatalf("config id mismatch: got %s want %s", cfg.ID, role)
		}
		if len(cfg.AccessScope) == 0 {
			t.Fatalf("%s has empty access scope", role)
		}
	}
}

func TestGetUnknownRole(t *testing.T) {
	_, err := Get(Role("warehouse"))
	if !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestScopeAndRestrictionsDisjoint(t *testing.T) {
	for _, role := range All() {
		cfg, _ := Get(role)
		deny := make(map[Category]struct{})
		for _, c := range cfg.Restrictions {
			deny[c] = struct{}{}
		}
		for _, c := range cfg.AccessScope {
			if _, ok := deny[c]; ok {
				t.Fatalf("%s lists %s in both scope and restrictions", role, c)
			}
		}
	}
}

func TestMapDepartment(t *testing.T) {
	cases := []struct {
		department string
		want       Role
	}{
		{"Quality Assurance", RoleQA},
		{"Quality Control", RoleQC},
		{"Research & Development", RoleQC},
		{"Manufacturing", RoleProduction},
		{"Regulatory Affairs", RoleRegulatory},
		{"Business Development", RoleSales},
		{"Executive Leadership", RoleManagement},
		{"Information Technology", RoleAdmin},
		{"  quality assurance  ", RoleQA},
		{"Logistics", DefaultRole},
		{"", DefaultRole},
	}
	for _, tc := range cases {
		if got := MapDepartment(tc.department); got != tc.want {
			t.Fatalf("MapDepartment(%q) = %s, want %s", tc.department, got, tc.want)
		}
	}
}

func TestCategoryDisplayName(t *testing.T) {
	if CategoryDeviation.DisplayName() != "Deviation" {
		t.Fatalf("unexpected display name: %s", CategoryDeviation.DisplayName())
	}
	if !CategoryCAPA.Known() {
		t.Fatalf("capa should be a known category")
	}
	if Category("payroll").Known() {
		t.Fatalf("unknown category reported as known")
	}
}
