// Package roles is the static catalog of organizational roles and the
// document/fact categories their access policy is written against. The
// catalog is loaded once at process start and never mutated.
package roles

import (
	"errors"
	"fmt"
)

// Role identifies an organizational role.
type Role string

const (
	RoleQA         Role = "qa"
	RoleQC         Role = "qc"
	RoleProduction Role = "production"
	RoleRegulatory Role = "regulatory"
	RoleSales      Role = "sales"
	RoleManagement Role = "management"
	RoleAdmin      Role = "admin"
)

// ErrUnknownRole indicates a role tag outside the fixed catalog.
var ErrUnknownRole = errors.New("roles: unknown role")

// Category tags a document or extracted fact for policy matching.
type Category string

const (
	CategoryDeviation      Category = "deviation"
	CategoryCAPA           Category = "capa"
	CategorySOPApproved    Category = "sop.approved"
	CategorySOPDraft       Category = "sop.draft"
	CategoryBMR            Category = "bmr"
	CategoryAudit          Category = "audit"
	CategorySubmission     Category = "submission"
	CategoryReport         Category = "report"
	CategoryTestResult     Category = "test.result"
	CategoryStability      Category = "stability"
	CategoryChangeControl  Category = "change.control"
	CategoryTraining       Category = "training"
	CategoryCorrespondence Category = "correspondence"
	CategoryPricing        Category = "pricing"
	CategoryContract       Category = "contract"
	CategoryAggregate      Category = "aggregate"
	CategorySystem         Category = "system"
)

// categoryNames maps categories to the display names used in access
// justifications and restricted-content lists.
var categoryNames = map[Category]string{
	CategoryDeviation:      "Deviation",
	CategoryCAPA:           "CAPA",
	CategorySOPApproved:    "Approved SOP",
	CategorySOPDraft:       "Draft SOP",
	CategoryBMR:            "Batch Manufacturing Record",
	CategoryAudit:          "Audit",
	CategorySubmission:     "Regulatory Submission",
	CategoryReport:         "Report",
	CategoryTestResult:     "Test Result",
	CategoryStability:      "Stability Data",
	CategoryChangeControl:  "Change Control",
	CategoryTraining:       "Training Record",
	CategoryCorrespondence: "Regulatory Correspondence",
	CategoryPricing:        "Commercial Pricing",
	CategoryContract:       "Client Contract",
	CategoryAggregate:      "Aggregated Metrics",
	CategorySystem:         "System Administration",
}

// Known reports whether the category belongs to the fixed catalog.
// Unknown categories are never disclosed (fail-closed).
func (c Category) Known() bool {
	_, ok := categoryNames[c]
	return ok
}

// DisplayName returns the human-readable category name, or the raw tag
// for categories outside the catalog.
func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

// Config describes one role: its display identity, the categories it may
// see (allow-list) and the categories explicitly withheld (deny-list).
type Config struct {
	ID           Role       `json:"id"`
	Label        string     `json:"label"`
	FullName     string     `json:"full_name"`
	Description  string     `json:"description"`
	AccessScope  []Category `json:"access_scope"`
	Restrictions []Category `json:"restrictions"`
}

var configs = map[Role]Config{
	RoleQA: {
		ID:          RoleQA,
		Label:       "QA",
		FullName:    "Quality Assurance",
		Description: "Deviation management, CAPA, SOP oversight, audit coordination",
		AccessScope: []Category{
			CategoryDeviation,
			CategoryCAPA,
			CategorySOPApproved,
			CategorySOPDraft,
			CategoryAudit,
			CategoryChangeControl,
			CategoryTraining,
			CategoryAggregate,
		},
		Restrictions: []Category{
			CategoryPricing,
			CategoryContract,
		},
	},
	RoleQC: {
		ID:          RoleQC,
		Label:       "QC",
		FullName:    "Quality Control",
		Description: "Testing, OOS/OOT investigations, stability data, analytical methods",
		AccessScope: []Category{
			CategoryTestResult,
			CategoryStability,
			CategoryDeviation,
			CategorySOPApproved,
			CategoryReport,
			CategoryAggregate,
		},
		Restrictions: []Category{
			CategorySubmission,
			CategoryPricing,
		},
	},
	RoleProduction: {
		ID:          RoleProduction,
		Label:       "Production",
		FullName:    "Production / Manufacturing",
		Description: "Batch records, equipment logs, manufacturing deviations",
		AccessScope: []Category{
			CategoryBMR,
			CategoryDeviation,
			CategorySOPApproved,
			CategoryReport,
			CategoryChangeControl,
			CategoryAggregate,
		},
		Restrictions: []Category{
			CategoryAudit,
			CategoryCorrespondence,
			CategoryPricing,
		},
	},
	RoleRegulatory: {
		ID:          RoleRegulatory,
		Label:       "RA",
		FullName:    "Regulatory Affairs",
		Description: "Submissions, compliance mapping, inspection readiness",
		AccessScope: []Category{
			CategorySubmission,
			CategoryCorrespondence,
			CategoryAudit,
			CategorySOPApproved,
			CategorySOPDraft,
			CategoryReport,
			CategoryChangeControl,
			CategoryAggregate,
		},
		Restrictions: []Category{
			CategoryPricing,
			CategoryContract,
		},
	},
	RoleSales: {
		ID:          RoleSales,
		Label:       "Sales",
		FullName:    "Sales & Business Development",
		Description: "Product capabilities, RFP responses, client dossiers",
		AccessScope: []Category{
			CategoryReport,
			CategoryPricing,
			CategoryContract,
			CategoryAggregate,
		},
		Restrictions: []Category{
			CategoryDeviation,
			CategoryCAPA,
			CategorySOPDraft,
			CategoryAudit,
		},
	},
	RoleManagement: {
		ID:          RoleManagement,
		Label:       "Exec",
		FullName:    "Senior Management",
		Description: "Aggregated dashboards, risk indicators, trend analysis",
		AccessScope: []Category{
			CategoryAggregate,
		},
		Restrictions: []Category{
			CategoryDeviation,
			CategoryCAPA,
			CategoryBMR,
			CategoryTestResult,
		},
	},
	RoleAdmin: {
		ID:          RoleAdmin,
		Label:       "Admin",
		FullName:    "System Admin / IT",
		Description: "User management, role assignment, system health",
		AccessScope: []Category{
			CategorySystem,
			CategoryReport,
			CategoryAggregate,
		},
		Restrictions: []Category{
			CategorySubmission,
			CategoryCorrespondence,
		},
	},
}

func init() {
	// Contradictory catalogs must not ship: every role needs a non-empty
	// scope, and no category may appear in both lists.
	for role, cfg := range configs {
		if len(cfg.AccessScope) == 0 {
			panic(fmt.Sprintf("roles: %s has empty access scope", role))
		}
		deny := make(map[Category]struct{}, len(cfg.Restrictions))
		for _, c := range cfg.Restrictions {
			deny[c] = struct{}{}
		}
		for _, c := range cfg.AccessScope {
			if _, ok := deny[c]; ok {
				panic(fmt.Sprintf("roles: %s lists %s in both scope and restrictions", role, c))
			}
		}
	}
}

// All returns every role in the catalog.
func All() []Role {
	return []Role{
		RoleQA, RoleQC, RoleProduction, RoleRegulatory,
		RoleSales, RoleManagement, RoleAdmin,
	}
}

// Valid reports whether the role tag belongs to the catalog.
func Valid(role Role) bool {
	_, ok := configs[role]
	return ok
}

// Get returns the config for a role. It fails only for role tags outside
// the catalog.
func Get(role Role) (Config, error) {
	cfg, ok := configs[role]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return cfg, nil
}
