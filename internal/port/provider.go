package port

import "context"

// Provider is a single language-model backend. Complete performs exactly one
// network call and never retries internally; retry policy belongs to the
// caller so per-attempt telemetry stays visible.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderGateway dispatches a resolved prompt to a configured provider by
// identifier. Implementations must not mutate document or pattern state.
type ProviderGateway interface {
	Call(ctx context.Context, providerID, prompt string) (string, error)
}
