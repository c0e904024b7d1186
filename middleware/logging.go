package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) (map[string]any, error) {
		logger.Info("step started",
			slog.String("step_id", info.StepID),
			slog.String("instance_id", info.InstanceID),
			slog.String("workflow_id", info.WorkflowID),
			slog.Int("attempt", info.Attempt),
		)

		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("step_id", info.StepID),
				slog.String("instance_id", info.InstanceID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("step_id", info.StepID),
				slog.String("instance_id", info.InstanceID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
