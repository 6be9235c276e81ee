package domain

// Outcome is the terminal result of one email's pipeline run. Every run ends
// in exactly one of these.
type Outcome string

const (
	OutcomeDealCreated          Outcome = "DEAL_CREATED"
	OutcomeDealAlreadyExisted   Outcome = "DEAL_ALREADY_EXISTED"
	OutcomeContactCreatedNoDeal Outcome = "CONTACT_CREATED_NO_DEAL"
	OutcomeNoOpportunity        Outcome = "NO_OPPORTUNITY"
	OutcomeSkippedDuplicate     Outcome = "SKIPPED_DUPLICATE"
	OutcomeSkippedBudget        Outcome = "SKIPPED_BUDGET"
	OutcomeSkippedRateLimited   Outcome = "SKIPPED_RATE_LIMITED"
	OutcomeError                Outcome = "ERROR"
)
