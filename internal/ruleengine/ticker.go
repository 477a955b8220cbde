package ruleengine

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Ticker drives Engine.EvaluateTime off a once-per-second cron job,
// replacing the original's per-rule QTimer with a single shared tick
// the way the teacher's scheduler.Scheduler drives cron jobs.
type Ticker struct {
	cron   *cron.Cron
	engine *Engine
	log    *zap.Logger
}

func NewTicker(engine *Engine, log *zap.Logger) *Ticker {
	return &Ticker{
		cron:   cron.New(cron.WithSeconds()),
		engine: engine,
		log:    log,
	}
}

// Start registers the every-second job and starts the cron scheduler.
func (t *Ticker) Start(ctx context.Context) error {
	_, err := t.cron.AddFunc("@every 1s", func() {
		t.engine.EvaluateTime(ctx, time.Now())
	})
	if err != nil {
		return err
	}
	t.cron.Start()
	t.log.Info("rule time ticker started")
	return nil
}

func (t *Ticker) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
}
