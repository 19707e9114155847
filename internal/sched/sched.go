// Package sched runs the puller on a cron schedule when lorpull is
// started in daemon mode.
package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dmaluka/lornews/pkg/logger"
)

// Run validates the cron expression and triggers fn at each tick until
// ctx is canceled. A failing run is logged, not fatal: the next tick
// retries.
func Run(ctx context.Context, cronExpr string, fn func() error) error {
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid cron expression: %s", cronExpr)
	}
	logger.Info("scheduler_started", "cron", cronExpr)

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler_stopping")
			return nil
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := fn(); err != nil {
				logger.Error("scheduled_run_failed", "error", err)
			}
		case <-ctx.Done():
			logger.Info("scheduler_stopping")
			return nil
		}
	}
}
