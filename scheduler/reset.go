package scheduler

import (
	"context"
	"time"

	"github.com/kasuganosora/guildbank/cache"
	"go.uber.org/zap"
)

// ResetMarkerPrefix keys the once-per-day reset marker.
const ResetMarkerPrefix = "guildbank:reset:"

// Resetter clears daily withdrawal counters.
type Resetter interface {
	ResetDailyValues()
}

// DailyReset returns a task that runs r.ResetDailyValues at most once per
// calendar day across every node sharing c.
func DailyReset(c cache.Cache, r Resetter, logger *zap.Logger) TaskFn {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		day := time.Now().Format("2006-01-02")
		won, err := c.SetNX(ctx, ResetMarkerPrefix+day, "1", 25*time.Hour)
		if err != nil {
			logger.Error("daily reset marker", zap.String("day", day), zap.Error(err))
			return
		}
		if !won {
			logger.Info("daily reset already done", zap.String("day", day))
			return
		}
		r.ResetDailyValues()
		logger.Info("guild daily values reset", zap.String("day", day))
	}
}
