// Package respond combines raw retrieval output with policy verdicts into
// the final disclosed QueryResponse, the only object ever surfaced to
// presentation and audit layers.
package respond

import (
	"context"
	"strings"
	"time"

	"pharmalens.org/internal/audit"
	"pharmalens.org/internal/ids"
	"pharmalens.org/internal/knowledge"
	"pharmalens.org/internal/obs"
	"pharmalens.org/internal/policy"
	"pharmalens.org/internal/roles"
)

// Confidence is the qualitative confidence band.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DataStatus qualifies the freshness/completeness of the disclosed data.
type DataStatus string

const (
	DataCurrent DataStatus = "current"
	DataStale   DataStatus = "stale"
	DataPartial DataStatus = "partial"
)

// Sensitivity grades how carefully the response must be handled.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityMedium Sensitivity = "medium"
	SensitivityLow    Sensitivity = "low"
)

// noDisclosureStatement replaces a summary that redaction emptied. It is a
// fixed sentence so nothing about the withheld structure leaks through it.
const noDisclosureStatement = "No disclosable information was found for your role and query."

// regulatoryCategories is the fixed set whose presence among candidates
// marks a response regulatory-sensitive, disclosed or not.
var regulatoryCategories = map[roles.Category]struct{}{
	roles.CategoryDeviation:  {},
	roles.CategoryCAPA:       {},
	roles.CategorySubmission: {},
	roles.CategoryAudit:      {},
}

// QueryResponse is immutable after assembly.
type QueryResponse struct {
	ID                  string                      `json:"id"`
	Timestamp           time.Time                   `json:"timestamp"`
	Query               string                      `json:"query"`
	Summary             string                      `json:"summary"`
	Confidence          Confidence                  `json:"confidence"`
	ConfidenceScore     int                         `json:"confidence_score"`
	DataStatus          DataStatus                  `json:"data_status"`
	Sources             []knowledge.SourceDocument  `json:"sources"`
	SensitivityLevel    Sensitivity                 `json:"sensitivity_level"`
	RegulatorySensitive bool                        `json:"regulatory_sensitive"`
	PartialAccess       bool                        `json:"partial_access"`
	AccessJustification string                      `json:"access_justification,omitempty"`
	RestrictedContent   []string                    `json:"restricted_content,omitempty"`
	Verdict             policy.Verdict              `json:"disclosure_verdict"`
}

// Assembler builds QueryResponses. The clock and id source are injectable
// for tests; the audit emitter is best-effort and may be nil.
type Assembler struct {
	now     func() time.Time
	newID   func() string
	emitter *audit.Emitter
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the assembly timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(a *Assembler) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithIDSource overrides response id generation.
func WithIDSource(fn func() string) Option {
	return func(a *Assembler) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// New constructs an Assembler emitting audit records to the given emitter.
func New(emitter *audit.Emitter, opts ...Option) *Assembler {
	a := &Assembler{
		now:     time.Now,
		newID:   ids.New,
		emitter: emitter,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble filters the raw answer through the policy engine and produces
// the disclosed response. It never fails: anything unclassifiable is
// withheld, and audit delivery problems never reach the caller.
func (a *Assembler) Assemble(ctx context.Context, raw knowledge.RawAnswer, role roles.Role, userID, queryText string) QueryResponse {
	decision := policy.Evaluate(role, raw.CandidateSources, raw.Facts)

	summary, forcedPartial := redactSummary(raw, decision)
	score, band := confidence(raw.EvidenceStrength, decision.Withheld())
	regSensitive := regulatorySensitive(raw.CandidateSources)
	partial := decision.Verdict == policy.VerdictPartial

	resp := QueryResponse{
		ID:                  a.newID(),
		Timestamp:           a.now().UTC(),
		Query:               queryText,
		Summary:             summary,
		Confidence:          band,
		ConfidenceScore:     score,
		DataStatus:          dataStatus(decision, forcedPartial),
		Sources:             decision.AllowedDocuments(),
		SensitivityLevel:    sensitivity(regSensitive, partial),
		RegulatorySensitive: regSensitive,
		PartialAccess:       partial,
		RestrictedContent:   decision.WithheldCategories,
		Verdict:             decision.Verdict,
	}
	if partial {
		resp.AccessJustification = decision.Justification
	}

	obs.ObserveQuery(string(role), string(decision.Verdict), decision.Withheld())
	if a.emitter != nil {
		a.emitter.Emit(ctx, audit.Record{
			ResponseID:        resp.ID,
			UserID:            userID,
			Role:              string(role),
			Query:             queryText,
			Timestamp:         resp.Timestamp,
			DisclosureVerdict: string(decision.Verdict),
		})
	}
	return resp
}

// redactSummary drops every segment whose sole support is withheld. A
// segment with no citations is a general statement and survives; emptied
// summaries are replaced by the fixed no-disclosure statement.
func redactSummary(raw knowledge.RawAnswer, decision policy.Decision) (string, bool) {
	var kept []string
	for _, seg := range raw.Segments {
		if segmentDisclosable(seg, decision) {
			kept = append(kept, seg.Text)
		}
	}
	for _, fact := range decision.AllowedFacts() {
		kept = append(kept, fact.Statement)
	}
	if len(kept) == 0 {
		return noDisclosureStatement, true
	}
	return strings.Join(kept, "\n"), false
}

func segmentDisclosable(seg knowledge.Segment, decision policy.Decision) bool {
	if len(seg.SourceIDs) == 0 {
		return true
	}
	for _, id := range seg.SourceIDs {
		if decision.DocumentAllowed(id) {
			return true
		}
	}
	return false
}

// confidence derives the band from evidence density and lowers it one tier
// per withheld-but-relevant source. Redaction only ever lowers the score.
func confidence(evidence, withheld int) (int, Confidence) {
	score := evidence
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	tier := bandIndex(score) - withheld
	if tier < 0 {
		tier = 0
	}
	if ceil := bandCeiling(tier); score > ceil {
		score = ceil
	}
	return score, bandOf(score)
}

func bandIndex(score int) int {
	switch {
	case score >= 80:
		return 2
	case score >= 50:
		return 1
	default:
		return 0
	}
}

func bandCeiling(tier int) int {
	switch tier {
	case 2:
		return 100
	case 1:
		return 79
	default:
		return 49
	}
}

func bandOf(score int) Confidence {
	switch {
	case score >= 80:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func dataStatus(decision policy.Decision, forcedPartial bool) DataStatus {
	if forcedPartial || decision.Verdict != policy.VerdictFull {
		return DataPartial
	}
	for _, doc := range decision.AllowedDocuments() {
		if doc.Status == knowledge.StatusArchived || doc.Status == knowledge.StatusSuperseded {
			return DataStale
		}
	}
	return DataCurrent
}

func regulatorySensitive(candidates []knowledge.SourceDocument) bool {
	for _, doc := range candidates {
		if _, ok := regulatoryCategories[doc.Category()]; ok {
			return true
		}
	}
	return false
}

func sensitivity(regSensitive, partial bool) Sensitivity {
	switch {
	case regSensitive && partial:
		return SensitivityHigh
	case regSensitive:
		return SensitivityMedium
	default:
		return SensitivityLow
	}
}
