package storage

import (
	"context"
	"time"
)

// queryTimeout bounds individual statements so one stuck connection cannot
// hold a caller forever. A deadline already on the context wins.
const queryTimeout = 5 * time.Second

func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}
