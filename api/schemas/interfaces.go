package schemas

import "context"

// OracleClient is the decision backend. Implementations receive the full
// observation (screenshot plus structured digest) and return one Decision.
type OracleClient interface {
	Decide(ctx context.Context, obs Observation) (Decision, error)
	Close() error
}

// Perceiver captures the observable state of the active page. DismissConsent
// runs before each observation so cookie walls do not swallow a step.
type Perceiver interface {
	Observe(ctx context.Context) (Observation, error)
	DismissConsent(ctx context.Context) (bool, error)
}

// Executor carries a Decision out against the live page.
type Executor interface {
	Execute(ctx context.Context, dec Decision, obs Observation) (ExecutionOutcome, error)
}
