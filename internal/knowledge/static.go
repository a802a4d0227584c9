package knowledge

import (
	"context"

	"pharmalens.org/internal/roles"
)

// StaticRetriever returns a fixed HVAC-deviation answer for every query.
// It backs demo mode and tests; the candidate set deliberately spans
// categories with different clearances so role filtering is visible.
type StaticRetriever struct{}

func (StaticRetriever) Query(_ context.Context, _ string, _ roles.Role) (RawAnswer, error) {
	sources := []SourceDocument{
		{
			ID: "DEV-2024-0142", Title: "HVAC Temperature Excursion - Bldg B",
			Type: DocDeviation, Status: StatusApproved,
			Department: "Manufacturing", TraceabilityID: "TR-DEV-142",
		},
		{
			ID: "DEV-2024-0089", Title: "Filter Replacement Delay Impact",
			Type: DocDeviation, Status: StatusApproved,
			Department: "Facilities", TraceabilityID: "TR-DEV-089",
		},
		{
			ID: "CAPA-2024-0034", Title: "HVAC Monitoring Enhancement",
			Type: DocCAPA, Status: StatusDraft,
			Department: "Quality", TraceabilityID: "TR-CAPA-034",
		},
		{
			ID: "SOP-ENV-003", Title: "Environmental Monitoring Procedure",
			Type: DocSOP, Version: "v4.2", Status: StatusApproved,
			Department: "Quality", TraceabilityID: "TR-SOP-ENV003",
		},
	}
	return RawAnswer{
		Segments: []Segment{
			{
				Text:      "Analysis of HVAC-related deviations over the past 12 months reveals 14 documented incidents across 3 manufacturing areas.",
				SourceIDs: []string{"DEV-2024-0142", "DEV-2024-0089"},
			},
			{
				Text:      "Temperature excursions (5 incidents) were concentrated in Building B, Area 3.",
				SourceIDs: []string{"DEV-2024-0142"},
			},
			{
				Text:      "Corrective actions have been implemented for 11 of 14 deviations; 3 CAPAs remain open with target completion in February 2025.",
				SourceIDs: []string{"CAPA-2024-0034"},
			},
			{
				Text:      "Environmental monitoring follows the approved procedure SOP-ENV-003 v4.2.",
				SourceIDs: []string{"SOP-ENV-003"},
			},
		},
		CandidateSources: sources,
		Facts: []Fact{
			{Statement: "14 HVAC-related deviations recorded in the trailing 12 months", Category: roles.CategoryAggregate},
			{Statement: "Compliance health index for environmental controls: 78/100", Category: roles.CategoryAggregate},
		},
		EvidenceStrength: 92,
	}, nil
}
