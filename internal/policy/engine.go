// Package policy is the authoritative gate between retrieved content and
// the user. Evaluation is pure and synchronous: no I/O, no shared state,
// safe to call concurrently.
package policy

import (
	"fmt"
	"strings"

	"pharmalens.org/internal/knowledge"
	"pharmalens.org/internal/roles"
)

// Access is the per-item visibility decision.
type Access string

const (
	// AccessAllow discloses the item.
	AccessAllow Access = "allow"
	// AccessRedact withholds the item but acknowledges it by category in
	// the access justification.
	AccessRedact Access = "redact"
	// AccessDeny withholds the item without acknowledgement. Unknown and
	// malformed categories always land here (fail-closed).
	AccessDeny Access = "deny"
)

// Verdict is the aggregate disclosure decision for a response.
type Verdict string

const (
	VerdictFull    Verdict = "full"
	VerdictPartial Verdict = "partial"
	VerdictDenied  Verdict = "denied"
)

// DocumentDecision records the ruling for one candidate document.
type DocumentDecision struct {
	Document knowledge.SourceDocument
	Category roles.Category
	Access   Access
	Reason   string
}

// FactDecision records the ruling for one candidate fact.
type FactDecision struct {
	Fact   knowledge.Fact
	Access Access
	Reason string
}

// Decision is the full evaluation result for one candidate set.
type Decision struct {
	Role               roles.Role
	Verdict            Verdict
	Documents          []DocumentDecision
	Facts              []FactDecision
	WithheldCategories []string
	Justification      string
}

const (
	reasonInScope         = "category in role access scope"
	reasonRestricted      = "category in role restriction list"
	reasonUnknownCategory = "unknown category denied by default"
	reasonUnlisted        = "category outside role access scope"
	reasonAggregationOnly = "aggregation-only role: document-level access withheld"
	reasonSalesStructural = "restricted for sales: deviation, CAPA and draft content withheld"
)

// Evaluate applies the role's policy to every candidate item and aggregates
// a response-level verdict. It never fails for well-formed or malformed
// input; anything it cannot classify is withheld.
func Evaluate(role roles.Role, docs []knowledge.SourceDocument, facts []knowledge.Fact) Decision {
	cfg, err := roles.Get(role)
	if err != nil {
		// Unknown roles see nothing.
		return Decision{
			Role:          role,
			Verdict:       VerdictDenied,
			Justification: "No disclosable information is available for this role.",
		}
	}

	scope := categorySet(cfg.AccessScope)
	restricted := categorySet(cfg.Restrictions)

	decision := Decision{Role: role}
	withheld := newCategoryList()

	for _, doc := range docs {
		dd := DocumentDecision{Document: doc, Category: doc.Category()}
		dd.Access, dd.Reason = decideDocument(role, dd.Category, doc, scope, restricted)
		if dd.Access == AccessRedact {
			withheld.add(dd.Category)
		}
		decision.Documents = append(decision.Documents, dd)
	}

	for _, fact := range facts {
		fd := FactDecision{Fact: fact}
		fd.Access, fd.Reason = decideFact(role, fact, scope, restricted)
		if fd.Access == AccessRedact {
			withheld.add(fact.Category)
		}
		decision.Facts = append(decision.Facts, fd)
	}

	decision.WithheldCategories = withheld.names()
	decision.Verdict = aggregate(decision)
	if decision.Verdict != VerdictFull {
		decision.Justification = justification(cfg, decision)
	}
	return decision
}

// decideDocument orders the rules: the fail-closed unknown-category check
// first, then structural rules, then deny-list, allow-list, default-deny.
// The unknown check must come first so a malformed tag is denied silently
// rather than redacted and acknowledged by name.
func decideDocument(role roles.Role, cat roles.Category, doc knowledge.SourceDocument, scope, restricted map[roles.Category]struct{}) (Access, string) {
	if !cat.Known() {
		return AccessDeny, reasonUnknownCategory
	}
	// Management is aggregation-only: no document-level disclosure, ever.
	if role == roles.RoleManagement {
		return AccessRedact, reasonAggregationOnly
	}
	// Sales never sees deviations, CAPAs or draft documents, even where a
	// coarser allow entry would nominally match.
	if role == roles.RoleSales {
		if cat == roles.CategoryDeviation || cat == roles.CategoryCAPA || doc.Status == knowledge.StatusDraft {
			return AccessRedact, reasonSalesStructural
		}
	}
	return decideCategory(cat, scope, restricted)
}

func decideFact(role roles.Role, fact knowledge.Fact, scope, restricted map[roles.Category]struct{}) (Access, string) {
	if !fact.Category.Known() {
		return AccessDeny, reasonUnknownCategory
	}
	// Management sees aggregated facts only; anything document-grade is
	// withheld before category matching.
	if role == roles.RoleManagement && fact.Category != roles.CategoryAggregate {
		return AccessRedact, reasonAggregationOnly
	}
	return decideCategory(fact.Category, scope, restricted)
}

func decideCategory(cat roles.Category, scope, restricted map[roles.Category]struct{}) (Access, string) {
	if !cat.Known() {
		return AccessDeny, reasonUnknownCategory
	}
	// Deny-list wins over any allow-list overlap.
	if _, ok := restricted[cat]; ok {
		return AccessRedact, reasonRestricted
	}
	if _, ok := scope[cat]; ok {
		return AccessAllow, reasonInScope
	}
	return AccessDeny, reasonUnlisted
}

func aggregate(d Decision) Verdict {
	var allowed, total int
	for _, dd := range d.Documents {
		total++
		if dd.Access == AccessAllow {
			allowed++
		}
	}
	for _, fd := range d.Facts {
		total++
		if fd.Access == AccessAllow {
			allowed++
		}
	}
	switch {
	case total == 0 || allowed == 0:
		return VerdictDenied
	case allowed == total:
		return VerdictFull
	default:
		return VerdictPartial
	}
}

func justification(cfg roles.Config, d Decision) string {
	if len(d.WithheldCategories) == 0 {
		return fmt.Sprintf("No disclosable information is available for the %s role.", cfg.FullName)
	}
	return fmt.Sprintf(
		"Content withheld for the %s role: %s.",
		cfg.FullName, strings.Join(d.WithheldCategories, ", "),
	)
}

// AllowedDocuments returns the disclosed documents in candidate order.
func (d Decision) AllowedDocuments() []knowledge.SourceDocument {
	var out []knowledge.SourceDocument
	for _, dd := range d.Documents {
		if dd.Access == AccessAllow {
			out = append(out, dd.Document)
		}
	}
	return out
}

// AllowedFacts returns the disclosed facts in candidate order.
func (d Decision) AllowedFacts() []knowledge.Fact {
	var out []knowledge.Fact
	for _, fd := range d.Facts {
		if fd.Access == AccessAllow {
			out = append(out, fd.Fact)
		}
	}
	return out
}

// DocumentAllowed reports whether the document with the given id was
// disclosed.
func (d Decision) DocumentAllowed(id string) bool {
	for _, dd := range d.Documents {
		if dd.Document.ID == id {
			return dd.Access == AccessAllow
		}
	}
	return false
}

// Withheld counts candidate documents that were not disclosed.
func (d Decision) Withheld() int {
	n := 0
	for _, dd := range d.Documents {
		if dd.Access != AccessAllow {
			n++
		}
	}
	return n
}

func categorySet(list []roles.Category) map[roles.Category]struct{} {
	set := make(map[roles.Category]struct{}, len(list))
	for _, c := range list {
		set[c] = struct{}{}
	}
	return set
}

// categoryList preserves first-seen order while deduplicating.
type categoryList struct {
	seen  map[roles.Category]struct{}
	order []roles.Category
}

func newCategoryList() *categoryList {
	return &categoryList{seen: make(map[roles.Category]struct{})}
}

func (l *categoryList) add(c roles.Category) {
	if _, ok := l.seen[c]; ok {
		return
	}
	l.seen[c] = struct{}{}
	l.order = append(l.order, c)
}

func (l *categoryList) names() []string {
	if len(l.order) == 0 {
		return nil
	}
	out := make([]string, 0, len(l.order))
	for _, c := range l.order {
		out = append(out, c.DisplayName())
	}
	return out
}
