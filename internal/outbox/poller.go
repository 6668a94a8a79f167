package outbox

import (
	"context"
	"time"

	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// poll calls batch every interval until ctx is done. Each batch gets its
// own deadline of one interval so a hung handler cannot stall the loop.
func poll(ctx context.Context, name string, interval time.Duration, log logger.Logger, batch func(context.Context) (int, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info(name+" started", "pollingInterval", interval)

	for {
		select {
		case <-ctx.Done():
			log.Info(name + " stopped")
			return nil
		case <-ticker.C:
			batchCtx, cancel := context.WithTimeout(ctx, interval)
			n, err := batch(batchCtx)
			cancel()

			if err != nil {
				log.Error(name+" batch failed", "error", err)
				continue
			}
			if n > 0 {
				log.Debug(name+" batch done", "count", n)
			}
		}
	}
}
