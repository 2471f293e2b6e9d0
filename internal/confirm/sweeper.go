package confirm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically expires orphaned pending confirmations, entries
// whose conversation was abandoned without ever answering yes or no.
type Sweeper struct {
	broker *Broker
	maxAge time.Duration
	cron   *cron.Cron
}

// NewSweeper creates a sweeper running on the given cron expression
// (standard 5-field form).
func NewSweeper(broker *Broker, expr string, maxAge time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		broker: broker,
		maxAge: maxAge,
		cron:   cron.New(),
	}

	if _, err := s.cron.AddFunc(expr, s.sweep); err != nil {
		return nil, fmt.Errorf("sweeper: parse cron %q: %w", expr, err)
	}
	return s, nil
}

// Start launches the cron schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("confirmation sweeper started", "max_age", s.maxAge)
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("confirmation sweeper stopped")
}

func (s *Sweeper) sweep() {
	expired := s.broker.Expire(s.maxAge)
	if len(expired) == 0 {
		return
	}
	for _, p := range expired {
		slog.Info("expired pending confirmation",
			"id", p.ID, "conversation", p.Conversation, "age", time.Since(p.CreatedAt))
	}
}
