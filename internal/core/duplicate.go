package core

import "github.com/JonMunkholm/PageImport/internal/pages"

// Decision is the duplicate policy's verdict for one row.
type Decision int

const (
	DecisionCreate Decision = iota
	DecisionSkip
	DecisionCreateUnique
	DecisionModify
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionSkip:
		return "skip"
	case DecisionCreateUnique:
		return "create-unique"
	case DecisionModify:
		return "modify"
	}
	return "unknown"
}

// Decide applies policy to a row whose name lookup returned existing, which
// is nil when no page under the target parent has the row's name.
func Decide(existing *pages.Page, policy DuplicatePolicy) Decision {
	if existing == nil {
		return DecisionCreate
	}
	switch policy {
	case PolicyCreateUnique:
		return DecisionCreateUnique
	case PolicyModify:
		return DecisionModify
	default:
		return DecisionSkip
	}
}
