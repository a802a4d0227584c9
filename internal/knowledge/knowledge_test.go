package knowledge

import (
	"context"
	"testing"

	"pharmalens.org/internal/roles"
)

func TestDocumentCategory(t *testing.T) {
	cases := []struct {
		doc  SourceDocument
		want roles.Category
	}{
		{SourceDocument{Type: DocSOP, Status: StatusApproved}, roles.CategorySOPApproved},
		{SourceDocument{Type: DocSOP, Status: StatusDraft}, roles.CategorySOPDraft},
		{SourceDocument{Type: DocDeviation, Status: StatusApproved}, roles.CategoryDeviation},
		{SourceDocument{Type: DocCAPA, Status: StatusDraft}, roles.CategoryCAPA},
		{SourceDocument{Type: DocBMR, Status: StatusApproved}, roles.CategoryBMR},
		{SourceDocument{Type: DocAudit, Status: StatusApproved}, roles.CategoryAudit},
		{SourceDocument{Type: DocSubmission, Status: StatusApproved}, roles.CategorySubmission},
		{SourceDocument{Type: DocReport, Status: StatusApproved}, roles.CategoryReport},
		{SourceDocument{Type: DocCorrespondence, Status: StatusApproved}, roles.CategoryCorrespondence},
	}
	for _, tc := range cases {
		if got := tc.doc.Category(); got != tc.want {
			t.Fatalf("Category(%s/%s) = %s, want %s", tc.doc.Type, tc.doc.Status, got, tc.want)
		}
	}
}

func TestUnknownDocumentTypeIsUnknownCategory(t *testing.T) {
	doc := SourceDocument{Type: DocumentType("Memo"), Status: StatusApproved}
	if doc.Category().Known() {
		t.Fatalf("unrecognized document type must map to an unknown category")
	}
}

func TestStaticRetrieverCandidatesUnfiltered(t *testing.T) {
	answer, err := (StaticRetriever{}).Query(context.Background(), "hvac deviations", roles.RoleSales)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	// The backend must surface every consulted source regardless of the
	// asking role; filtering belongs to the policy engine.
	if len(answer.CandidateSources) != 4 {
		t.Fatalf("expected 4 candidate sources, got %d", len(answer.CandidateSources))
	}
	if answer.EvidenceStrength < 0 || answer.EvidenceStrength > 100 {
		t.Fatalf("evidence strength out of range: %d", answer.EvidenceStrength)
	}
	seen := make(map[string]struct{})
	for _, doc := range answer.CandidateSources {
		if doc.TraceabilityID == "" {
			t.Fatalf("source %s missing traceability id", doc.ID)
		}
		if _, dup := seen[doc.TraceabilityID]; dup {
			t.Fatalf("traceability id %s reused", doc.TraceabilityID)
		}
		seen[doc.TraceabilityID] = struct{}{}
	}
}

func TestSuggestedQueriesPerRole(t *testing.T) {
	for _, role := range roles.All() {
		if len(SuggestedQueries(role)) == 0 {
			t.Fatalf("no suggestions for role %s", role)
		}
	}
}
