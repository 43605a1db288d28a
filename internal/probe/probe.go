package probe

import (
	"context"

	"conncheck/internal/domain"
)

// Prober performs a single HTTP check for one request specification.
// Transport and protocol failures land in the result, never in a returned
// error, so one bad request can never abort a sequence of checks.
type Prober interface {
	Do(ctx context.Context, spec RequestSpec) domain.APIResult
}
