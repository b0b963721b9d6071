package main

import (
	"context"
	"log/slog"
	"time"
)

type rebaser interface {
	Rebase(ctx context.Context) (bool, error)
}

// rebaseLoop calls Rebase every interval until ctx ends.
func rebaseLoop(ctx context.Context, p rebaser, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rebased, err := p.Rebase(ctx)
			if err != nil {
				// Execute already logged the failure.
				continue
			}
			if rebased {
				logger.Info("epoch rebased")
			}
		}
	}
}
