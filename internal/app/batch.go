package app

import (
	"context"

	"remindbot/internal/transport"
)

// nextBatch blocks for the first update, then takes whatever else is
// immediately available up to max. ok is false once ctx is done or in is
// closed and drained.
func nextBatch(ctx context.Context, in <-chan transport.Update, max int) (batch []transport.Update, ok bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case u, open := <-in:
		if !open {
			return nil, false
		}
		batch = append(batch, u)
	}
	for len(batch) < max {
		select {
		case u, open := <-in:
			if !open {
				return batch, true
			}
			batch = append(batch, u)
		default:
			return batch, true
		}
	}
	return batch, true
}
