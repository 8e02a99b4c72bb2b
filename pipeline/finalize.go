package pipeline

import (
	"context"
)

// runFinalize consumes doneQueue, flips status to finished, and
// clears the persisted failure flag.
func (p *Pipeline) runFinalize(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.doneQueue:
			guard("finalize", j, p.errQueue, func() error {
				p.registry.Finalize(j)
				return nil
			})
		}
	}
}
