package events

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/MrJamesThe3rd/donorledger/internal/reconcile"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=events
type Repository interface {
	// SaveEvent stores r unless an event with the same id is already stored.
	SaveEvent(ctx context.Context, r *Record) error
	GetEvent(ctx context.Context, id string) (*Record, error)
	ListEvents(ctx context.Context, filter ListFilter) ([]*Record, error)
	RecordAttempt(ctx context.Context, id string, processedAt *time.Time, lastError string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, evt *reconcile.Event) error
}

type ListFilter struct {
	FailedOnly bool
	Type       string
	Limit      int
}

type Service struct {
	repo       Repository
	dispatcher Dispatcher
}

func NewService(repo Repository, dispatcher Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher}
}

// Ingest records a verified webhook payload and applies it to the ledger.
// Malformed payloads fail with reconcile.ErrMalformedEvent before anything is
// stored.
func (s *Service) Ingest(ctx context.Context, payload []byte) (*reconcile.Event, error) {
	evt, err := reconcile.DecodeEvent(payload)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:         evt.ID,
		Type:       evt.Type,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}

	if err := s.repo.SaveEvent(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving event: %w", err)
	}

	return evt, s.process(ctx, evt)
}

// Replay applies a stored event again.
func (s *Service) Replay(ctx context.Context, id string) (*Record, error) {
	rec, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	evt, err := reconcile.DecodeEvent(rec.Payload)
	if err != nil {
		return nil, err
	}

	slog.Info("replaying event", "event_id", id, "event_type", rec.Type, "attempts", rec.Attempts)

	if err := s.process(ctx, evt); err != nil {
		return nil, err
	}

	return s.repo.GetEvent(ctx, id)
}

// ReplaySummary reports the outcome of ReplayFailed.
type ReplaySummary struct {
	Replayed  int
	Recovered int
	Failed    []string // ids of events that failed again
}

// ReplayFailed replays every event whose latest attempt failed, oldest first.
// A failing event does not stop the run.
func (s *Service) ReplayFailed(ctx context.Context, eventType string, limit int) (*ReplaySummary, error) {
	records, err := s.repo.ListEvents(ctx, ListFilter{FailedOnly: true, Type: eventType, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("listing failed events: %w", err)
	}

	slices.SortStableFunc(records, func(a, b *Record) int {
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})

	summary := &ReplaySummary{}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Replayed++

		if _, err := s.Replay(ctx, rec.ID); err != nil {
			slog.Warn("replay failed again", "event_id", rec.ID, "event_type", rec.Type, "error", err)
			summary.Failed = append(summary.Failed, rec.ID)

			continue
		}

		summary.Recovered++
	}

	return summary, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	return s.repo.ListEvents(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.GetEvent(ctx, id)
}

func (s *Service) process(ctx context.Context, evt *reconcile.Event) error {
	dispatchErr := s.dispatcher.Dispatch(ctx, evt)

	var (
		processedAt *time.Time
		lastError   string
	)

	if dispatchErr != nil {
		lastError = dispatchErr.Error()
	} else {
		processedAt = new(time.Now().UTC())
	}

	if err := s.repo.RecordAttempt(ctx, evt.ID, processedAt, lastError); err != nil {
		slog.Error("failed to record event attempt", "event_id", evt.ID, "error", err)
	}

	return dispatchErr
}
