package workspace

// RepositoryCategory distinguishes the root project from plugin forks.
type RepositoryCategory string

// Supported repository categories.
const (
	RepositoryCategoryRoot   RepositoryCategory = RepositoryCategory("root")
	RepositoryCategoryPlugin RepositoryCategory = RepositoryCategory("plugin")
)

// Repository identifies one discovered repository for the duration of a run.
type Repository struct {
	Path     string
	Name     string
	Category RepositoryCategory
}

// Scope selects the subset of repositories a batch command targets.
type Scope string

// Supported scopes.
const (
	ScopeAll     Scope = Scope("all")
	ScopePlugins Scope = Scope("plugins")
	ScopeRoot    Scope = Scope("root")
)

// ParseScope validates a textual scope value.
func ParseScope(value string) (Scope, bool) {
	switch Scope(value) {
	case ScopeAll, ScopePlugins, ScopeRoot:
		return Scope(value), true
	default:
		return Scope(""), false
	}
}

// OutcomeStatus enumerates terminal per-repository states of a batch command.
type OutcomeStatus string

// Supported outcome statuses.
const (
	OutcomeStatusSucceeded OutcomeStatus = OutcomeStatus("succeeded")
	OutcomeStatusFailed    OutcomeStatus = OutcomeStatus("failed")
	OutcomeStatusSkipped   OutcomeStatus = OutcomeStatus("skipped")
)

// Outcome records what happened to one repository during a batch command.
type Outcome struct {
	Status OutcomeStatus
	Detail string
}

// OutcomeSummary aggregates batch results by status.
type OutcomeSummary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Summarize tallies outcomes by terminal status.
func Summarize(outcomes map[string]Outcome) OutcomeSummary {
	summary := OutcomeSummary{}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case OutcomeStatusSucceeded:
			summary.Succeeded++
		case OutcomeStatusFailed:
			summary.Failed++
		case OutcomeStatusSkipped:
			summary.Skipped++
		}
	}
	return summary
}
