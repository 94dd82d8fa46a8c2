package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/db"
)

// RetryWorker periodically retries due outbox messages in every barangay.
type RetryWorker struct {
	outbox *Outbox
	cron   *cron.Cron
	logger zerolog.Logger

	listBarangays func(ctx context.Context) ([]string, error)
	scope         func(ctx context.Context, code string) (context.Context, func(), error)

	mu      sync.Mutex
	running bool
}

func NewRetryWorker(pool *pgxpool.Pool, outbox *Outbox, logger zerolog.Logger) *RetryWorker {
	return &RetryWorker{
		outbox: outbox,
		cron:   cron.New(),
		logger: logger.With().Str("component", "outbox_worker").Logger(),
		listBarangays: func(ctx context.Context) ([]string, error) {
			return db.ListBarangays(ctx, pool)
		},
		scope: func(ctx context.Context, code string) (context.Context, func(), error) {
			return db.WithBarangayConn(ctx, pool, code)
		},
	}
}

// Start schedules RunOnce on the given cron spec.
func (w *RetryWorker) Start(schedule string) error {
	_, err := w.cron.AddFunc(schedule, func() {
		if err := w.RunOnce(context.Background()); err != nil {
			w.logger.Error().Err(err).Msg("outbox retry run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule outbox retry %q: %w", schedule, err)
	}
	w.cron.Start()
	w.logger.Info().Str("schedule", schedule).Msg("outbox retry worker started")
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (w *RetryWorker) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce retries due messages in each barangay schema. A failing barangay is
// logged and skipped. Overlapping runs are dropped.
func (w *RetryWorker) RunOnce(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	codes, err := w.listBarangays(ctx)
	if err != nil {
		return err
	}
	for _, code := range codes {
		w.runBarangay(ctx, code)
	}
	return nil
}

func (w *RetryWorker) runBarangay(ctx context.Context, code string) {
	scoped, release, err := w.scope(ctx, code)
	if err != nil {
		w.logger.Error().Err(err).Str("barangay", code).Msg("acquire barangay connection")
		return
	}
	defer release()

	sent, failed, err := w.outbox.RetryDue(scoped)
	if err != nil {
		w.logger.Error().Err(err).Str("barangay", code).Msg("retry due emails")
		return
	}
	if sent+failed > 0 {
		w.logger.Info().Str("barangay", code).Int("sent", sent).Int("failed", failed).Msg("outbox retry")
	}
}
