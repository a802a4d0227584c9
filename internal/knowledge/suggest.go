package knowledge

import "pharmalens.org/internal/roles"

// suggestions is the fixed per-role starter-query table shown before the
// first query of a session.
var suggestions = map[roles.Role][]string{
	roles.RoleQA: {
		"Show recurring deviations linked to HVAC in last 12 months",
		"CAPA status for open deviations in manufacturing",
		"Training compliance status by department",
	},
	roles.RoleQC: {
		"Any historical OOS for Product X, Test Y?",
		"Stability failures in Q4 2024",
		"Trending OOT investigations",
	},
	roles.RoleProduction: {
		"Similar deviations during granulation step?",
		"Equipment maintenance due this week",
		"BMR completion status for Batch 2024-001",
	},
	roles.RoleRegulatory: {
		"All deviations cited in last USFDA inspection",
		"SOP changes pending regulatory review",
		"Audit readiness score by area",
	},
	roles.RoleSales: {
		"Can we support Product X for EU market?",
		"Client compliance requirements summary",
		"Product capability for RFP-2024-089",
	},
	roles.RoleManagement: {
		"Compliance risk overview this quarter",
		"Cross-functional deviation trends",
		"Resource allocation vs compliance goals",
	},
	roles.RoleAdmin: {
		"System health status",
		"User activity last 30 days",
		"Data ingestion queue status",
	},
}

// SuggestedQueries returns the starter queries for a role.
func SuggestedQueries(role roles.Role) []string {
	return suggestions[role]
}
