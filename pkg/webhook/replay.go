package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/wabridge/pkg/logger"
)

// ReplayScheduler re-queues dead letters whenever its cron expression is due.
type ReplayScheduler struct {
	expr       string
	dispatcher *Dispatcher
	tick       time.Duration
}

func NewReplayScheduler(expr string, dispatcher *Dispatcher) (*ReplayScheduler, error) {
	gron := gronx.New()
	if !gron.IsValid(expr) {
		return nil, fmt.Errorf("invalid replay cron expression %q", expr)
	}
	return &ReplayScheduler{
		expr:       expr,
		dispatcher: dispatcher,
		tick:       time.Minute,
	}, nil
}

// Run checks the schedule once per minute until ctx is cancelled.
func (s *ReplayScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runIfDue(now)
		}
	}
}

func (s *ReplayScheduler) runIfDue(now time.Time) bool {
	gron := gronx.New()
	due, err := gron.IsDue(s.expr, now.Truncate(time.Minute))
	if err != nil {
		logger.ErrorCF("webhook", "Replay schedule check failed", map[string]interface{}{
			"expr":  s.expr,
			"error": err.Error(),
		})
		return false
	}
	if !due {
		return false
	}

	if n := s.dispatcher.Replay(); n > 0 {
		logger.InfoCF("webhook", "Replaying dead letters", map[string]interface{}{
			"count": n,
		})
	}
	return true
}
