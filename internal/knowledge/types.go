// Package knowledge defines the retrieval-backend boundary: source document
// and raw-answer shapes plus the Retriever contract. Retrievers return every
// candidate source they used; filtering is entirely the policy engine's job.
package knowledge

import (
	"errors"

	"pharmalens.org/internal/roles"
)

// ErrBackendUnavailable is the normalized error for any retrieval failure.
var ErrBackendUnavailable = errors.New("knowledge: backend unavailable")

// DocumentType enumerates the fixed GxP document kinds.
type DocumentType string

const (
	DocSOP            DocumentType = "SOP"
	DocDeviation      DocumentType = "Deviation"
	DocCAPA           DocumentType = "CAPA"
	DocBMR            DocumentType = "BMR"
	DocAudit          DocumentType = "Audit"
	DocSubmission     DocumentType = "Submission"
	DocReport         DocumentType = "Report"
	DocCorrespondence DocumentType = "Correspondence"
)

// DocumentStatus is the lifecycle state of a controlled document.
type DocumentStatus string

const (
	StatusApproved   DocumentStatus = "approved"
	StatusDraft      DocumentStatus = "draft"
	StatusArchived   DocumentStatus = "archived"
	StatusSuperseded DocumentStatus = "superseded"
)

// SourceDocument is one attributable source behind an answer. TraceabilityID
// is the stable audit cross-reference, immutable once assigned and never
// reused across documents.
type SourceDocument struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Type           DocumentType   `json:"type"`
	Version        string         `json:"version,omitempty"`
	Status         DocumentStatus `json:"status"`
	Department     string         `json:"department"`
	TraceabilityID string         `json:"traceability_id"`
}

// Category derives the policy category for a document from its type and
// status. Unrecognized types map to an unknown category, which the policy
// engine denies by default.
func (d SourceDocument) Category() roles.Category {
	switch d.Type {
	case DocSOP:
		if d.Status == StatusDraft {
			return roles.CategorySOPDraft
		}
		return roles.CategorySOPApproved
	case DocDeviation:
		return roles.CategoryDeviation
	case DocCAPA:
		return roles.CategoryCAPA
	case DocBMR:
		return roles.CategoryBMR
	case DocAudit:
		return roles.CategoryAudit
	case DocSubmission:
		return roles.CategorySubmission
	case DocReport:
		return roles.CategoryReport
	case DocCorrespondence:
		return roles.CategoryCorrespondence
	default:
		return roles.Category(string(d.Type))
	}
}

// Fact is one extractable statement from a raw answer with an explicit
// category tag. Aggregated facts carry CategoryAggregate.
type Fact struct {
	Statement string         `json:"statement"`
	Category  roles.Category `json:"category"`
}

// Segment is a span of answer text together with the ids of the sources
// that support it. A segment with no source ids is a general statement.
type Segment struct {
	Text      string   `json:"text"`
	SourceIDs []string `json:"source_ids,omitempty"`
}

// RawAnswer is the unfiltered backend result. EvidenceStrength is a 0-100
// density score the assembler turns into a confidence band.
type RawAnswer struct {
	Segments         []Segment        `json:"segments"`
	CandidateSources []SourceDocument `json:"candidate_sources"`
	Facts            []Fact           `json:"facts,omitempty"`
	EvidenceStrength int              `json:"evidence_strength"`
}

// Text joins all segments into the full unfiltered answer text.
func (a RawAnswer) Text() string {
	out := ""
	for i, s := range a.Segments {
		if i > 0 {
			out += "\n"
		}
		out += s.Text
	}
	return out
}
