package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrJamesThe3rd/donorledger/internal/transaction"
)

// maxAttempts bounds how often a unit is re-run after a uniqueness violation.
// The second run finds the row the concurrent writer created and enriches it.
const maxAttempts = 3

type handlerFunc func(ctx context.Context, u *unit) error

// unit is the state shared by a handler run.
type unit struct {
	tx    Tx
	guard *guard
	log   *slog.Logger
	evt   *Event
	ids   Identifiers
}

// Dispatcher routes verified events to their handler and runs each one as a
// single atomic unit of ledger work.
type Dispatcher struct {
	repo     Repository
	lookup   Lookup
	log      *slog.Logger
	tracer   trace.Tracer
	handlers map[string]handlerFunc
}

// NewDispatcher creates a Dispatcher. lookup may be nil, in which case data
// missing from payloads simply stays absent.
func NewDispatcher(repo Repository, lookup Lookup, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		repo:   repo,
		lookup: lookup,
		log:    log,
		tracer: otel.Tracer("github.com/MrJamesThe3rd/donorledger/internal/reconcile"),
	}
	d.handlers = d.routes()

	return d
}

// Handles reports whether eventType has a handler.
func (d *Dispatcher) Handles(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// Dispatch applies evt to the ledger. Unknown event types and events that
// refer to nothing the ledger knows are acknowledged without error; any other
// failure is returned so the sender retries.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *Event) error {
	ctx, span := d.tracer.Start(ctx, "reconcile.dispatch", trace.WithAttributes(
		attribute.String("event.id", evt.ID),
		attribute.String("event.type", evt.Type),
	))
	defer span.End()

	log := d.log.With("event_id", evt.ID, "event_type", evt.Type)

	h, ok := d.handlers[evt.Type]
	if !ok {
		log.Debug("ignoring unhandled event type")
		return nil
	}

	ids := d.complete(ctx, log, Extract(evt.Object))
	keys := ids.lockKeys(
		prefixed("attempt", attemptOf(evt.Object)),
		prefixed("refund", refundOf(evt.Object)),
	)

	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = d.run(ctx, log, evt, ids, keys, h)
		if !errors.Is(err, transaction.ErrDuplicate) {
			break
		}

		log.Warn("unique key taken concurrently, re-resolving owner", "attempt", attempt, "error", err)
	}

	switch {
	case err == nil:
		return nil
	case IsAbsent(err):
		log.Warn("nothing to reconcile", "reason", err.Error())
		span.SetAttributes(attribute.Bool("reconcile.absent", true))

		return nil
	default:
		log.Error("failed to reconcile event", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return fmt.Errorf("reconciling %s %s: %w", evt.Type, evt.ID, err)
	}
}

func (d *Dispatcher) run(ctx context.Context, log *slog.Logger, evt *Event, ids Identifiers, keys []string, h handlerFunc) error {
	tx, err := d.repo.Begin(ctx, keys)
	if err != nil {
		return fmt.Errorf("beginning unit: %w", err)
	}
	defer tx.Rollback()

	u := &unit{
		tx:    tx,
		guard: &guard{tx: tx, log: log},
		log:   log,
		evt:   evt,
		ids:   ids,
	}

	if err := h(ctx, u); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing unit: %w", err)
	}

	return nil
}

// complete fills ids the payload omitted from the processor API. Failures
// leave the field absent.
func (d *Dispatcher) complete(ctx context.Context, log *slog.Logger, ids Identifiers) Identifiers {
	if d.lookup == nil || ids.ChargeID != "" || ids.PaymentIntentID == "" {
		return ids
	}

	chargeID, err := d.lookup.ChargeForPaymentIntent(ctx, ids.PaymentIntentID)
	if err != nil {
		log.Warn("charge lookup failed", "payment_intent_id", ids.PaymentIntentID, "error", err)
		return ids
	}

	ids.ChargeID = chargeID

	return ids
}

func attemptOf(obj Payload) string {
	return obj.String(
		"metadata.attempt_id",
		"client_reference_id",
		"subscription_details.metadata.attempt_id",
		"parent.subscription_details.metadata.attempt_id",
	)
}

func refundOf(obj Payload) string {
	if obj.Kind() == "refund" {
		return obj.ID("id")
	}

	return ""
}

func prefixed(prefix, v string) string {
	if v == "" {
		return ""
	}

	return prefix + ":" + v
}
