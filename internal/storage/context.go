package storage

import (
	"context"
	"time"
)

// DefaultQueryTimeout bounds database queries that arrive without a deadline.
const DefaultQueryTimeout = 10 * time.Second

// withQueryTimeout ensures a query context carries a deadline without
// overriding one the caller already set.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}
