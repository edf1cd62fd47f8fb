package health

import "context"

// HealthPinger is implemented by backends that can verify their own
// connectivity. A nil return means the backend is reachable and usable.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
