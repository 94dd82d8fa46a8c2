package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dchest/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/barangay172/portal/internal/platform/db"
)

const (
	baseBackoff = time.Minute
	maxBackoff  = 6 * time.Hour
	claimLease  = 10 * time.Minute
	maxErrorLen = 500
)

// ErrInvalidRecipient is returned by Enqueue for a malformed address.
var ErrInvalidRecipient = errors.New("invalid recipient email")

// Deliverer hands a rendered message to a provider and names the one used.
type Deliverer interface {
	Send(ctx context.Context, e Email) (provider string, err error)
}

// Message is a templated email to enqueue.
type Message struct {
	To       string
	ToName   string
	Template string
	Data     map[string]string
}

type OutboxConfig struct {
	Enabled     bool
	MaxAttempts int
	BatchSize   int
	// Defaults merged under every message's template data.
	Defaults map[string]string
	// Switch, when set, is consulted after Enabled on every delivery run.
	// The portal wires the per-barangay email_enabled setting here.
	Switch func(ctx context.Context) bool
}

// Outbox stores messages durably and delivers them.
type Outbox struct {
	repo      OutboxRepository
	sealer    *Sealer
	sender    Deliverer
	templates *TemplateEngine
	cfg       OutboxConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewOutbox(repo OutboxRepository, sealer *Sealer, sender Deliverer, templates *TemplateEngine, cfg OutboxConfig, logger zerolog.Logger) *Outbox {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	return &Outbox{
		repo:      repo,
		sealer:    sealer,
		sender:    sender,
		templates: templates,
		cfg:       cfg,
		logger:    logger.With().Str("component", "email_outbox").Logger(),
		now:       time.Now,
	}
}

// Backoff is the delay after a failed attempt: one minute doubled for every
// earlier attempt, capped at six hours.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 9 {
		return maxBackoff
	}
	d := baseBackoff << uint(attempts)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Enqueue renders and seals msg and stores it as pending. When ctx carries a
// transaction the row commits or rolls back with it.
func (o *Outbox) Enqueue(ctx context.Context, msg Message) (*OutboxEmail, error) {
	if !validator.IsValidEmail(msg.To) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, msg.To)
	}
	data := make(map[string]string, len(o.cfg.Defaults)+len(msg.Data))
	for k, v := range o.cfg.Defaults {
		data[k] = v
	}
	for k, v := range msg.Data {
		data[k] = v
	}
	subject, body, err := o.templates.Render(msg.Template, data)
	if err != nil {
		return nil, err
	}

	e := &OutboxEmail{
		ID:            uuid.New(),
		Recipient:     msg.To,
		RecipientName: msg.ToName,
		Subject:       subject,
		Template:      msg.Template,
		Status:        StatusPending,
		NextAttemptAt: o.now().UTC(),
	}
	sealed, err := o.sealer.Seal(body, e.ID[:])
	if err != nil {
		return nil, err
	}
	e.SealedBody = &sealed

	if err := o.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("enqueue email: %w", err)
	}
	return e, nil
}

// Deliver attempts one delivery of a pending message. Provider failures are
// recorded on the row and not returned; the returned error covers storage
// problems only. With email disabled the message stays queued.
//
// The row is claimed before sending. When the retry worker holds it, or it
// is not due, the current row is returned untouched and the worker sends it.
func (o *Outbox) Deliver(ctx context.Context, id uuid.UUID) (*OutboxEmail, error) {
	if !o.enabled(ctx) {
		return o.repo.GetByID(ctx, id)
	}
	e, err := o.repo.Claim(ctx, id, o.now().UTC(), claimLease)
	if errors.Is(err, db.ErrNotFound) {
		return o.repo.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim email: %w", err)
	}
	return e, o.attempt(ctx, e)
}

func (o *Outbox) attempt(ctx context.Context, e *OutboxEmail) error {
	now := o.now().UTC()

	if e.SealedBody == nil {
		return o.recordFailure(ctx, e, errors.New("message body missing"), now, true)
	}
	body, err := o.sealer.Open(*e.SealedBody, e.ID[:])
	if err != nil {
		// Key rotated or row tampered with; retrying cannot help.
		return o.recordFailure(ctx, e, err, now, true)
	}

	provider, sendErr := o.sender.Send(ctx, Email{
		To:      e.Recipient,
		ToName:  e.RecipientName,
		Subject: e.Subject,
		Body:    body,
	})
	if sendErr != nil {
		return o.recordFailure(ctx, e, sendErr, now, false)
	}

	if err := o.repo.MarkSent(ctx, e.ID, provider, now); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	e.Status = StatusSent
	e.SealedBody = nil
	e.Provider = &provider
	e.SentAt = &now
	e.Attempts++
	e.LastError = nil
	o.logger.Info().Str("outbox_id", e.ID.String()).Str("provider", provider).Msg("email delivered")
	return nil
}

func (o *Outbox) recordFailure(ctx context.Context, e *OutboxEmail, cause error, now time.Time, permanent bool) error {
	attempts := e.Attempts + 1
	status := StatusPending
	if permanent || attempts >= o.cfg.MaxAttempts {
		status = StatusFailed
	}
	next := now.Add(Backoff(e.Attempts))
	msg := truncate(cause.Error(), maxErrorLen)

	if err := o.repo.MarkAttemptFailed(ctx, e.ID, attempts, msg, status, next); err != nil {
		return fmt.Errorf("record email failure: %w", err)
	}
	e.Attempts = attempts
	e.Status = status
	e.LastError = &msg
	e.NextAttemptAt = next

	o.logger.Warn().
		Str("outbox_id", e.ID.String()).
		Int("attempts", attempts).
		Str("status", status).
		Time("next_attempt_at", next).
		Str("error", msg).
		Msg("email delivery failed")
	return nil
}

// RetryDue delivers pending messages whose next attempt is due.
func (o *Outbox) RetryDue(ctx context.Context) (sent, failed int, err error) {
	if !o.enabled(ctx) {
		return 0, 0, nil
	}
	due, err := o.repo.ClaimDue(ctx, o.now().UTC(), claimLease, o.cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("claim due emails: %w", err)
	}
	for _, e := range due {
		if err := o.attempt(ctx, e); err != nil {
			return sent, failed, err
		}
		if e.Delivered() {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed, nil
}

// Retry requeues a pending or failed message and attempts it immediately,
// ignoring the backoff schedule.
func (o *Outbox) Retry(ctx context.Context, id uuid.UUID) (*OutboxEmail, error) {
	e, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Delivered() {
		return e, nil
	}
	if err := o.repo.Requeue(ctx, id, o.now().UTC()); err != nil {
		return nil, err
	}
	return o.Deliver(ctx, id)
}

func (o *Outbox) List(ctx context.Context, status string, limit, offset int) ([]*OutboxEmail, int, error) {
	if status != "" && status != StatusPending && status != StatusSent && status != StatusFailed {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return o.repo.List(ctx, status, limit, offset)
}

// SendTest queues and immediately attempts a test message.
func (o *Outbox) SendTest(ctx context.Context, to string) (*OutboxEmail, error) {
	e, err := o.Enqueue(ctx, Message{To: to, Template: TemplateTest})
	if err != nil {
		return nil, err
	}
	return o.Deliver(ctx, e.ID)
}

// enabled reports whether delivery is switched on for ctx's barangay.
func (o *Outbox) enabled(ctx context.Context) bool {
	return o.cfg.Enabled && (o.cfg.Switch == nil || o.cfg.Switch(ctx))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
